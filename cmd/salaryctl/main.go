package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/picklechips/salary-estimate/internal/estimate"
	"github.com/picklechips/salary-estimate/internal/stream"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "salaryctl",
		Short:         "Client for the salary estimation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the salaryd server")

	extractCmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract structured job data from a posting URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.Context(), args[0])
		},
	}

	var streaming bool
	estimateCmd := &cobra.Command{
		Use:   "estimate <url>",
		Short: "Extract a job posting and estimate its salary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if streaming {
				return runEstimateStream(cmd.Context(), args[0])
			}
			return runEstimate(cmd.Context(), args[0])
		},
	}
	estimateCmd.Flags().BoolVar(&streaming, "stream", false, "render the estimate incrementally as it is produced")

	root.AddCommand(extractCmd, estimateCmd)

	if err := root.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

func postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return fmt.Errorf("%s", parsed.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func fetchJob(ctx context.Context, pageURL string) (json.RawMessage, error) {
	spinner, _ := pterm.DefaultSpinner.Start("Extracting job posting...")
	resp, err := postJSON(ctx, "/api/extract", map[string]string{"url": pageURL})
	if err != nil {
		spinner.Fail(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := decodeError(resp)
		spinner.Fail(err.Error())
		return nil, err
	}

	var parsed struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		spinner.Fail(err.Error())
		return nil, err
	}
	spinner.Success("Job posting extracted")
	return parsed.Data, nil
}

func runExtract(ctx context.Context, pageURL string) error {
	job, err := fetchJob(ctx, pageURL)
	if err != nil {
		return err
	}
	renderJob(job)
	return nil
}

func runEstimate(ctx context.Context, pageURL string) error {
	job, err := fetchJob(ctx, pageURL)
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Estimating salary...")
	resp, err := postJSON(ctx, "/api/estimate", map[string]any{"jobData": job})
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := decodeError(resp)
		spinner.Fail(err.Error())
		return err
	}

	var parsed struct {
		Success  bool              `json:"success"`
		Estimate estimate.Estimate `json:"estimate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Estimate ready")
	renderEstimate(parsed.Estimate)
	return nil
}

func runEstimateStream(ctx context.Context, pageURL string) error {
	job, err := fetchJob(ctx, pageURL)
	if err != nil {
		return err
	}

	resp, err := postJSON(ctx, "/api/estimate/stream", map[string]any{"jobData": job})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	area, _ := pterm.DefaultArea.Start()
	final, err := stream.Consume(resp.Body, func(snap stream.Snapshot) {
		area.Update(renderPartial(snap.Estimate))
	})
	area.Stop()
	if err != nil {
		return err
	}

	renderEstimate(final)
	return nil
}

func renderJob(job json.RawMessage) {
	var fields struct {
		Title          string `json:"title"`
		Company        string `json:"company"`
		Location       string `json:"location"`
		EmploymentType string `json:"employmentType"`
		Description    string `json:"description"`
	}
	if err := json.Unmarshal(job, &fields); err != nil || fields.Title == "" {
		// Unknown shape, show it raw.
		var pretty bytes.Buffer
		if json.Indent(&pretty, job, "", "  ") == nil {
			fmt.Println(pretty.String())
		} else {
			fmt.Println(string(job))
		}
		return
	}

	rows := pterm.TableData{{"Field", "Value"}}
	for _, kv := range [][2]string{
		{"Title", fields.Title},
		{"Company", fields.Company},
		{"Location", fields.Location},
		{"Type", fields.EmploymentType},
		{"Description", truncate(fields.Description, 200)},
	} {
		if kv[1] != "" {
			rows = append(rows, []string{kv[0], kv[1]})
		}
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func renderPartial(est estimate.Estimate) string {
	var b strings.Builder
	b.WriteString(pterm.Bold.Sprint("Salary estimate") + "\n")
	writeField(&b, "Range", est.SalaryRange)
	writeField(&b, "Confidence", est.ConfidenceLevel)
	writeField(&b, "Reasoning", est.Reasoning)
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		value = pterm.Gray("...")
	}
	fmt.Fprintf(b, "%s %s\n", pterm.LightCyan(label+":"), value)
}

func renderEstimate(est estimate.Estimate) {
	if !est.Complete() && est.SalaryRange == "" {
		pterm.Warning.Println("No estimate produced")
		return
	}
	fmt.Print(renderPartial(est))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
