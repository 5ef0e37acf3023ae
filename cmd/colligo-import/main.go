package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/phuslu/log"
	"gopkg.in/yaml.v3"
)

// importFile is the yaml shape accepted by -file. A plain newline-delimited
// URL list works too.
type importFile struct {
	URLs []string `yaml:"urls"`
}

type importResponse struct {
	JobID    string `json:"job_id"`
	Accepted int    `json:"accepted"`
	Rejected []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"rejected"`
}

type jobResponse struct {
	Job struct {
		ID       string                 `json:"id"`
		Status   string                 `json:"status"`
		Progress int                    `json:"progress"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"job"`
}

var (
	serverURL = flag.String("server", "http://localhost:8190", "Colligo server URL")
	filePath  = flag.String("file", "", "URL list file (yaml with a urls key, or one URL per line)")
	wait      = flag.Bool("wait", false, "Poll until the import job finishes")
	interval  = flag.Duration("interval", 2*time.Second, "Poll interval when waiting")
)

func main() {
	flag.Parse()

	log.DefaultLogger = log.Logger{
		Level:      log.InfoLevel,
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			ColorOutput: true,
		},
	}

	urls, err := loadURLs(*filePath, flag.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load URL list")
	}
	if len(urls) == 0 {
		log.Fatal().Msg("No URLs to import: pass -file or URLs as arguments")
	}

	resp, err := submitImport(*serverURL, urls)
	if err != nil {
		log.Fatal().Err(err).Msg("Import request failed")
	}

	log.Info().
		Str("job_id", resp.JobID).
		Int("accepted", resp.Accepted).
		Int("rejected", len(resp.Rejected)).
		Msg("Import started")

	for _, rej := range resp.Rejected {
		log.Warn().Str("url", rej.URL).Str("error", rej.Error).Msg("URL rejected")
	}

	if !*wait {
		return
	}

	if err := pollJob(*serverURL, resp.JobID, *interval); err != nil {
		log.Fatal().Err(err).Msg("Import did not complete")
	}
}

// loadURLs reads URLs from the file flag and any positional arguments.
func loadURLs(path string, args []string) ([]string, error) {
	urls := append([]string{}, args...)

	if path == "" {
		return urls, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed importFile
	if err := yaml.Unmarshal(data, &parsed); err == nil && len(parsed.URLs) > 0 {
		return append(urls, parsed.URLs...), nil
	}

	// Fall back to one URL per line.
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// submitImport posts the URL list to the import endpoint.
func submitImport(server string, urls []string) (*importResponse, error) {
	payload, err := json.Marshal(map[string][]string{"urls": urls})
	if err != nil {
		return nil, err
	}

	httpResp, err := http.Post(server+"/api/import/urls", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusAccepted {
		var errBody map[string]interface{}
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("server returned %d: %v", httpResp.StatusCode, errBody)
	}

	var resp importResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// pollJob reports job progress until the job reaches a terminal status.
func pollJob(server, jobID string, interval time.Duration) error {
	for {
		httpResp, err := http.Get(server + "/api/jobs/" + jobID)
		if err != nil {
			return err
		}

		var resp jobResponse
		err = json.NewDecoder(httpResp.Body).Decode(&resp)
		httpResp.Body.Close()
		if err != nil {
			return err
		}

		log.Info().
			Str("status", resp.Job.Status).
			Int("progress", resp.Job.Progress).
			Msg("Import progress")

		switch resp.Job.Status {
		case "completed":
			log.Info().Str("job_id", jobID).Msg("Import finished")
			return nil
		case "failed", "cancelled":
			return fmt.Errorf("import job %s ended with status %s", jobID, resp.Job.Status)
		}

		time.Sleep(interval)
	}
}
