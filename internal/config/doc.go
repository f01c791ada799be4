// Package config defines configuration for the milvue CLI and pipeline.
//
// Configuration can be provided via, in increasing precedence:
//   - Built-in defaults ([Default])
//   - YAML configuration file ([LoadFromFile])
//   - Environment variables (MILVUE_ prefix, optionally from a .env file)
//   - Command-line flags, applied with [Config.Merge]
//
// The service URL is either explicit (api_url, --api-url) or taken from
// the variable of the selected environment: MILVUE_API_URL_DEV,
// MILVUE_API_URL_STAGING, MILVUE_API_URL_PROD or MILVUE_API_URL.
//
// # File Format
//
//	api_key: "..."
//	environment: prod
//	output_dir: ./results
//	recursive: true
//	inference: [smarturgences, smartxpert]
//	params:
//	  language: en
//	  output_format: overlay
//	  static_report_format: pdf
//	poll:
//	  interval: 3s
//	  max_attempts: 400
//	study_timeout: 30m
//	concurrency:
//	  studies: 8
//	  uploads: 4
//	  downloads: 8
//	upload_barrier: false
//	fail_on_study_error: false
//	log:
//	  level: info
//	  timestamps: false
package config
