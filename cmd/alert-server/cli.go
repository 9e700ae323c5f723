package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alert/alert/internal/config"
	"github.com/alert/alert/internal/domain/adds"
	"github.com/alert/alert/internal/domain/review"
	"github.com/alert/alert/internal/domain/rules"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Import a note, apply field overrides and print the risk category and report",
		Example: `  alert-server evaluate --file handover.txt
  alert-server evaluate --file - --field pt_name="Jane Doe" --field renal=true < note.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			fieldArgs, _ := cmd.Flags().GetStringArray("field")
			reviewType, _ := cmd.Flags().GetString("type")

			text, err := readNote(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			fields, err := parseFieldFlags(fieldArgs)
			if err != nil {
				return err
			}
			view, err := evaluate(cmd.Context(), text, reviewType, fields)
			if err != nil {
				return err
			}
			printEvaluation(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Note to import; - reads stdin")
	cmd.Flags().StringArray("field", nil, "Field override as name=value (repeatable)")
	cmd.Flags().String("type", "post", "Review type: post or pre")
	return cmd
}

func readNote(file string, stdin io.Reader) (string, error) {
	switch file {
	case "":
		return "", nil
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	default:
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read note: %w", err)
		}
		return string(b), nil
	}
}

type fieldOverride struct {
	Name  string
	Value string
}

// parseFieldFlags splits name=value pairs, keeping their order so later
// overrides win.
func parseFieldFlags(args []string) ([]fieldOverride, error) {
	out := make([]fieldOverride, 0, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --field %q: expected name=value", a)
		}
		out = append(out, fieldOverride{Name: name, Value: value})
	}
	return out, nil
}

// evaluate runs one review through an in-memory service.
func evaluate(ctx context.Context, text, reviewType string, fields []fieldOverride) (*review.View, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	cfg := &config.Config{RecomputeDebounceMS: 350, Timezone: "Australia/Perth"}
	svc := newReviewService(cfg, review.NewMemoryStore(), logger)
	defer svc.Close()

	v, err := svc.Create(ctx, reviewType, "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) != "" {
		if _, err := svc.Import(ctx, v.ID, text); err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
	}
	for _, f := range fields {
		if _, err := svc.SetField(ctx, v.ID, f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return svc.Recompute(ctx, v.ID)
}

func printEvaluation(w io.Writer, v *review.View) {
	fmt.Fprintf(w, "Category: %s\n", v.CategoryLabel)
	printFindings(w, "Red flags", v.Red)
	printFindings(w, "Amber flags", v.Amber)
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimRight(v.Report, "\n"))
}

func printFindings(w io.Writer, title string, findings []rules.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, f := range findings {
		fmt.Fprintf(w, "  - %s\n", f.Text)
	}
}

func addsCmd() *cobra.Command {
	var in adds.Inputs
	var mode string
	cmd := &cobra.Command{
		Use:   "adds",
		Short: "Score a set of vital signs on the ADDS chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch adds.O2Mode(mode) {
			case adds.O2Standard, adds.O2HighFlow:
				in.O2Mode = adds.O2Mode(mode)
			default:
				return fmt.Errorf("--o2-mode must be std or hf, got %q", mode)
			}
			printADDS(cmd.OutOrStdout(), adds.Calculate(in))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.RR, "rr", "", "Respiratory rate")
	f.StringVar(&in.SpO2, "spo2", "", "SpO2 %")
	f.StringVar(&in.O2, "o2", "", "Oxygen: RA, L/min or FiO2 %")
	f.StringVar(&mode, "o2-mode", string(adds.O2Standard), "Oxygen mode: std (L/min) or hf (FiO2)")
	f.StringVar(&in.SBP, "sbp", "", "Systolic blood pressure")
	f.StringVar(&in.DBP, "dbp", "", "Diastolic blood pressure")
	f.StringVar(&in.HR, "hr", "", "Heart rate")
	f.StringVar(&in.Temp, "temp", "", "Temperature")
	f.StringVar(&in.AVPU, "avpu", "", "Consciousness: A, V, P or U")
	return cmd
}

func printADDS(w io.Writer, r adds.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		score adds.SubScore
	}{
		{"RR", r.RR},
		{"SpO2", r.SpO2},
		{"O2", r.O2},
		{"SBP", r.SBP},
		{"HR", r.HR},
		{"Temp", r.Temp},
		{"AVPU", r.AVPU},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", row.label, row.score.Display())
	}
	fmt.Fprintf(tw, "Total\t%d\n", r.Total)
	tw.Flush()
	if r.Critical {
		fmt.Fprintln(w, "MET criteria: at least one parameter in the critical band")
	}
}
