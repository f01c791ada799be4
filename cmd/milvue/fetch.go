package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ligustah/milvue/internal/dicomfile"
	"github.com/ligustah/milvue/internal/output"
	"github.com/ligustah/milvue/internal/results"
)

func newFetchCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		pf           paramFlags
		outputDir    string
		maxDownloads int
	)

	cmd := &cobra.Command{
		Use:   "fetch <studyKey>",
		Short: "Download the results of an already predicted study",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			pf.apply(cmd, &cfg)
			if changed(cmd, "output-dir") {
				cfg.OutputDir = outputDir
			}
			if changed(cmd, "max-downloads") {
				cfg.Concurrency.Downloads = maxDownloads
			}
			if err := cfg.Validate(); err != nil {
				return withExit(ExitInvalidArgs, err)
			}

			a, err := g.setup(cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			sets, err := a.cfg.ParameterSets()
			if err != nil {
				return withExit(ExitInvalidArgs, err)
			}
			sink, err := output.OpenDir(a.cfg.OutputDir)
			if err != nil {
				return err
			}
			defer sink.Close()

			fanout := results.New(a.client, dicomfile.NewReader(), sink, results.Options{
				MaxParallel: a.cfg.Concurrency.Downloads,
				Logger:      a.logger,
			})

			studyKey := args[0]
			var (
				rows   [][]string
				failed int
			)
			for _, o := range fanout.Run(cmd.Context(), studyKey, sets) {
				state := "ok"
				switch {
				case o.Err != nil:
					state = o.Err.Error()
					failed++
				case o.Empty():
					state = "no output"
				}
				rows = append(rows, []string{o.Params.String(), strconv.Itoa(len(o.Files)), state})
			}
			fmt.Fprintln(a.stdout, renderTable(
				[]string{"Inference", "Files", "Result"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))

			if failed > 0 {
				return withExit(ExitStudyFailed, fmt.Errorf("%d of %d parameter sets failed for study %s", failed, len(sets), studyKey))
			}
			return nil
		},
	}

	fs := cmd.Flags()
	pf.bind(fs)
	fs.StringVarP(&outputDir, "output-dir", "o", "", "Directory results are written to (default \".\")")
	fs.IntVar(&maxDownloads, "max-downloads", 0, "Downloads in flight (default 8)")
	return cmd
}
