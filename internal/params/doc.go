// Package params models the per-request analysis parameters of the
// inference service.
//
// A [Set] is one ParameterSet: every field but the inference command is
// optional and omitted from the request when unset. [Build] expands a
// template into one Set per selected inference command.
//
// # Usage
//
//	sets, err := params.Build(params.Default(), params.SmartUrgences, params.SmartXpert)
//	if err != nil {
//	    return err
//	}
//	for _, s := range sets {
//	    resp, err := client.Download(ctx, studyKey, s.Query())
//	    ...
//	}
package params
