package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/server"
	"github.com/MeKo-Tech/elscan/internal/storage"
	"github.com/MeKo-Tech/elscan/internal/testutil"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n"

// APIServer is the HTTP API backed by a memory store and an inline queue.
// Uploaded documents are not rasterized: every job processes one synthetic
// page with a single exit sign, and uploads named broken.pdf fail.
type APIServer struct {
	HTTP     *httptest.Server
	store    *storage.Memory
	inline   *queue.Inline
	pipeline *pipeline.Pipeline
}

func newAPIServer(uploadDir string) (*APIServer, error) {
	logger := slog.New(slog.DiscardHandler)
	cfg := pipeline.DefaultConfig()
	cfg.Classifier.Provider = classifier.ProviderFallback
	cfg.MaxWorkers = 1
	p, err := pipeline.NewBuilder().WithConfig(cfg).WithLogger(logger).Build()
	if err != nil {
		return nil, err
	}

	process := func(ctx context.Context, path string) (*pipeline.DocumentResult, error) {
		if strings.Contains(filepath.Base(path), "_broken") {
			return nil, errors.New("document could not be rasterized")
		}
		page := pipeline.Page{
			Number: 1,
			Image:  testutil.SingleSymbolPage(400, 300, symbolRect),
			Blocks: []ocr.TextBlock{{Text: "EXIT", Box: utils.NewBox(140, 170, 200, 185), Confidence: 0.9}},
		}
		return p.ProcessDocument(ctx, []pipeline.Page{page})
	}

	store := storage.NewMemory()
	inline := queue.NewInline(queue.NewHandler(store, process, queue.DefaultConfig(), logger), 2)

	scfg := server.DefaultConfig()
	scfg.UploadDir = uploadDir
	scfg.PollInterval = 10 * time.Millisecond
	api, err := server.NewServer(scfg, store, inline, logger)
	if err != nil {
		_ = inline.Close()
		_ = p.Close()
		return nil, err
	}
	return &APIServer{HTTP: httptest.NewServer(api.Handler()), store: store, inline: inline, pipeline: p}, nil
}

// Close stops the server and waits for running jobs.
func (a *APIServer) Close() {
	a.HTTP.Close()
	_ = a.inline.Close()
	_ = a.pipeline.Close()
	_ = a.store.Close()
}

func (testCtx *TestContext) theAPIIsRunning() error {
	api, err := newAPIServer(testCtx.Path("uploads"))
	if err != nil {
		return fmt.Errorf("failed to start API: %w", err)
	}
	testCtx.API = api
	return nil
}

func (testCtx *TestContext) record(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	return nil
}

func (testCtx *TestContext) iUpload(filename, content string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := http.Post(testCtx.API.HTTP.URL+"/blueprints/upload", writer.FormDataContentType(), &buf) //nolint:noctx // test client
	if err != nil {
		return err
	}
	if err := testCtx.record(resp); err != nil {
		return err
	}
	var upload server.UploadResponse
	if json.Unmarshal([]byte(testCtx.LastHTTPResponse), &upload) == nil {
		testCtx.LastPDFName = upload.PDFName
	}
	return nil
}

func (testCtx *TestContext) iUploadThePDF(filename string) error {
	return testCtx.iUpload(filename, minimalPDF)
}

func (testCtx *TestContext) iUploadTheFileContaining(filename, content string) error {
	return testCtx.iUpload(filename, content)
}

func (testCtx *TestContext) iRequest(path string) error {
	resp, err := http.Get(testCtx.API.HTTP.URL + path) //nolint:noctx // test client
	if err != nil {
		return err
	}
	return testCtx.record(resp)
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected HTTP %d, got %d: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain %q: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theJobShouldFinishWithStatus polls the result endpoint until the upload
// reaches a terminal state.
func (testCtx *TestContext) theJobShouldFinishWithStatus(status string) error {
	if testCtx.LastPDFName == "" {
		return errors.New("no upload was accepted")
	}
	path := "/blueprints/result?pdf_name=" + url.QueryEscape(testCtx.LastPDFName)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := testCtx.iRequest(path); err != nil {
			return err
		}
		var res server.ResultResponse
		if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &res); err != nil {
			return fmt.Errorf("invalid result response: %w", err)
		}
		if res.Status != server.ResultInProgress {
			if res.Status != status {
				return fmt.Errorf("job finished as %s, expected %s: %s", res.Status, status, res.Message)
			}
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("job %s did not finish", testCtx.LastPDFName)
}

func (testCtx *TestContext) theJobResultShouldReportFixtures(n int) error {
	var res server.ResultResponse
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &res); err != nil {
		return err
	}
	if res.Result == nil {
		return errors.New("result has no classification")
	}
	if got := res.Result.TotalCount(); got != n {
		return fmt.Errorf("expected %d fixtures, got %d", n, got)
	}
	return nil
}

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the elscan API is running$`, testCtx.theAPIIsRunning)
	sc.Step(`^I upload the PDF "([^"]*)"$`, testCtx.iUploadThePDF)
	sc.Step(`^I upload "([^"]*)" containing "([^"]*)"$`, testCtx.iUploadTheFileContaining)
	sc.Step(`^I request "([^"]*)"$`, testCtx.iRequest)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the job should finish with status "([^"]*)"$`, testCtx.theJobShouldFinishWithStatus)
	sc.Step(`^the job result should report (\d+) fixtures?$`, testCtx.theJobResultShouldReportFixtures)
}
