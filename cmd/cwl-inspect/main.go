// cwl-inspect answers queries about CWL v1.2 documents: navigate the
// typed document tree, list keys, synthesize command lines (with or
// without a job), and resolve outputs after a run.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/cwlinspect/internal/inspect"
	"github.com/me/cwlinspect/internal/loader"
	"github.com/me/cwlinspect/internal/logging"
	"github.com/me/cwlinspect/pkg/cwl"
)

var (
	outDir   string
	tmpDir   string
	asJSON   bool
	asYAML   bool
	verbose  bool
	quiet    bool
)

const version = "0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "cwl-inspect [flags] <cwl-file> [pos] [job-file]",
		Short:   "Inspect CWL v1.2 documents",
		Version: version,
		Long: `cwl-inspect loads a CWL document and answers positional queries.

Examples:
  # Show the whole normalized document
  cwl-inspect tool.cwl .

  # Navigate to a field
  cwl-inspect tool.cwl .inputs.reads.type

  # List keys at a position
  cwl-inspect tool.cwl 'keys(.outputs)'

  # Print the command line (symbolic without a job)
  cwl-inspect tool.cwl commandline
  cwl-inspect tool.cwl commandline job.yml

  # Command line of one workflow step
  cwl-inspect workflow.cwl 'commandline(align)' job.yml

  # Resolve an output after the tool ran into --outdir
  cwl-inspect --outdir ./run tool.cwl 'ls(.outputs.bam)' job.yml
`,
		Args: cobra.RangeArgs(1, 3),
		RunE: runInspect,
	}

	rootCmd.Flags().StringVar(&outDir, "outdir", "", "Output directory (default: current directory)")
	rootCmd.Flags().StringVar(&tmpDir, "tmpdir", "", "Temporary directory (default: system temp)")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	rootCmd.Flags().BoolVar(&asYAML, "yaml", false, "Print results as YAML (default)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	logger := logging.New(logging.FromFlags(verbose, quiet))

	docPath := args[0]
	pos := "."
	if len(args) > 1 {
		pos = args[1]
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		return err
	}
	doc, err := loader.New(logger).LoadYAML(data)
	if err != nil {
		return err
	}
	logger.Debug("document loaded", "path", docPath, "class", doc.Root.NodeClass())

	var job cwl.Tree
	if len(args) > 2 {
		job, err = readJob(args[2])
		if err != nil {
			return err
		}
	}

	rt, err := buildRuntime(docPath)
	if err != nil {
		return err
	}

	result, err := inspect.New(doc, logger).Inspect(inspect.Request{
		Pos:     pos,
		Job:     job,
		Runtime: rt,
	})
	if err != nil {
		return err
	}
	return printResult(cmd, result)
}

func readJob(path string) (cwl.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job cwl.Tree
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, cwl.NewParseError(path, "invalid job file: %v", err)
	}
	return job, nil
}

func buildRuntime(docPath string) (*cwl.RuntimeContext, error) {
	od := outDir
	if od == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		od = wd
	}
	td := tmpDir
	if td == "" {
		td = os.TempDir()
	}
	rt := cwl.NewRuntimeContext(od, td)
	docDir, err := filepath.Abs(filepath.Dir(docPath))
	if err != nil {
		return nil, err
	}
	rt.DocDir = []string{docDir}
	return rt, nil
}

// printResult writes the query result to stdout: plain strings as-is,
// structured values as YAML (default) or JSON.
func printResult(cmd *cobra.Command, result any) error {
	if s, ok := result.(string); ok {
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	}
	norm := cwl.NormalizeForOutput(result)
	if asJSON && !asYAML {
		out, err := cwl.MarshalOutput(norm)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	out, err := yaml.Marshal(norm)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
