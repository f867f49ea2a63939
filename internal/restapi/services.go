package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
)

// =================== Evaluations ===================

func (c *Client) ListEvaluations(ctx context.Context) ([]Evaluation, error) {
	var out []Evaluation
	return out, c.do(ctx, http.MethodGet, "/evaluations", nil, &out)
}

func (c *Client) GetEvaluation(ctx context.Context, id int) (*Evaluation, error) {
	var out Evaluation
	return &out, c.do(ctx, http.MethodGet, "/evaluations/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) CreateEvaluation(ctx context.Context, e *Evaluation) (*Evaluation, error) {
	var out Evaluation
	return &out, c.do(ctx, http.MethodPost, "/evaluations", e, &out)
}

func (c *Client) UpdateEvaluation(ctx context.Context, id int, e *Evaluation) (*Evaluation, error) {
	var out Evaluation
	return &out, c.do(ctx, http.MethodPut, "/evaluations/"+strconv.Itoa(id), e, &out)
}

func (c *Client) DeleteEvaluation(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/evaluations/"+strconv.Itoa(id), nil, nil)
}

func (c *Client) ListEvaluationsBySubmission(ctx context.Context, submissionID int) ([]Evaluation, error) {
	var out []Evaluation
	return out, c.do(ctx, http.MethodGet, "/evaluations/submission/"+strconv.Itoa(submissionID), nil, &out)
}

func (c *Client) ListEvaluationsByEvaluator(ctx context.Context, evaluatorID int) ([]Evaluation, error) {
	var out []Evaluation
	return out, c.do(ctx, http.MethodGet, "/evaluations/evaluator/"+strconv.Itoa(evaluatorID), nil, &out)
}

func (c *Client) ListEvaluationsByTeam(ctx context.Context, teamID int) ([]Evaluation, error) {
	var out []Evaluation
	return out, c.do(ctx, http.MethodGet, "/evaluations/team/"+strconv.Itoa(teamID), nil, &out)
}

func (c *Client) ListEvaluationsByScoreRange(ctx context.Context, minScore, maxScore float64) ([]Evaluation, error) {
	var out []Evaluation
	path := fmt.Sprintf("/evaluations/score-range?minScore=%g&maxScore=%g", minScore, maxScore)
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// AutoEvaluateScheduler runs the automatic scheduler-based evaluation of a
// submission on the backend.
func (c *Client) AutoEvaluateScheduler(ctx context.Context, submissionID, evaluatorID int) (*Evaluation, error) {
	var out Evaluation
	path := fmt.Sprintf("/evaluations/auto/scheduler/%d/%d", submissionID, evaluatorID)
	return &out, c.do(ctx, http.MethodPost, path, struct{}{}, &out)
}

// AutoEvaluateGoodPractice runs the automatic good-practice evaluation,
// optionally with AI assistance.
func (c *Client) AutoEvaluateGoodPractice(ctx context.Context, submissionID, evaluatorID int, usingIA bool) (*Evaluation, error) {
	var out Evaluation
	path := fmt.Sprintf("/evaluations/auto/good-practice/%d/%d?using-ia=%t", submissionID, evaluatorID, usingIA)
	return &out, c.do(ctx, http.MethodPost, path, struct{}{}, &out)
}

// =================== Feedbacks ===================

func (c *Client) ListFeedbacks(ctx context.Context) ([]Feedback, error) {
	var out []Feedback
	return out, c.do(ctx, http.MethodGet, "/feedbacks", nil, &out)
}

func (c *Client) GetFeedback(ctx context.Context, id int) (*Feedback, error) {
	var out Feedback
	return &out, c.do(ctx, http.MethodGet, "/feedbacks/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) CreateFeedback(ctx context.Context, f *Feedback) (*Feedback, error) {
	var out Feedback
	return &out, c.do(ctx, http.MethodPost, "/feedbacks", f, &out)
}

func (c *Client) UpdateFeedback(ctx context.Context, id int, f *Feedback) (*Feedback, error) {
	var out Feedback
	return &out, c.do(ctx, http.MethodPut, "/feedbacks/"+strconv.Itoa(id), f, &out)
}

func (c *Client) DeleteFeedback(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/feedbacks/"+strconv.Itoa(id), nil, nil)
}

// AutoTeamFeedback generates feedback for a team's submission on the backend.
func (c *Client) AutoTeamFeedback(ctx context.Context, submissionID int) (*Feedback, error) {
	var out Feedback
	return &out, c.do(ctx, http.MethodPost, "/feedbacks/auto/equipo/"+strconv.Itoa(submissionID), struct{}{}, &out)
}

// =================== Plagiarism ===================

// DetectPlagiarism triggers originality detection for an assignment.
func (c *Client) DetectPlagiarism(ctx context.Context, req *PlagiarismRequest) (*PlagiarismResult, error) {
	var out PlagiarismResult
	path := "/plagiarism/detect/" + strconv.Itoa(req.AssignmentID)
	return &out, c.do(ctx, http.MethodPost, path, req, &out)
}

// PlagiarismHealth probes the detection service.
func (c *Client) PlagiarismHealth(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	return &out, c.do(ctx, http.MethodGet, "/plagiarism/health", nil, &out)
}

// =================== Excel import ===================

// ImportExcelComplete uploads a complete-format workbook for ingestion.
func (c *Client) ImportExcelComplete(ctx context.Context, filename string, file io.Reader) (*ExcelImportResult, error) {
	return c.uploadExcel(ctx, "/excel/import/complete", filename, file)
}

// ValidateExcelComplete uploads a workbook for validation only.
func (c *Client) ValidateExcelComplete(ctx context.Context, filename string, file io.Reader) (*ExcelImportResult, error) {
	return c.uploadExcel(ctx, "/excel/validate/complete", filename, file)
}

func (c *Client) uploadExcel(ctx context.Context, path, filename string, file io.Reader) (*ExcelImportResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var out ExcelImportResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// FormatInfoComplete describes the complete-format workbook layout.
func (c *Client) FormatInfoComplete(ctx context.Context) (*ExcelFormatInfo, error) {
	return c.formatInfo(ctx, "/excel/format-info/complete")
}

// FormatInfoGroups describes the groups sheet layout.
func (c *Client) FormatInfoGroups(ctx context.Context) (*ExcelFormatInfo, error) {
	return c.formatInfo(ctx, "/excel/format-info/groups")
}

// FormatInfoDeliveries describes the deliveries sheet layout.
func (c *Client) FormatInfoDeliveries(ctx context.Context) (*ExcelFormatInfo, error) {
	return c.formatInfo(ctx, "/excel/format-info/entregas")
}

// FormatInfoStudents describes the students sheet layout.
func (c *Client) FormatInfoStudents(ctx context.Context) (*ExcelFormatInfo, error) {
	return c.formatInfo(ctx, "/excel/format-info/estudiantes")
}

// FormatInfoTeams describes the teams sheet layout.
func (c *Client) FormatInfoTeams(ctx context.Context) (*ExcelFormatInfo, error) {
	return c.formatInfo(ctx, "/excel/format-info/equipos")
}

func (c *Client) formatInfo(ctx context.Context, path string) (*ExcelFormatInfo, error) {
	var out ExcelFormatInfo
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// =================== Plagiarism reports ===================

// ReportViewer fetches the HTML originality report for a detection session.
func (c *Client) ReportViewer(ctx context.Context, sessionID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reports/viewer/"+sessionID, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET reports/viewer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return string(data), nil
}

// ReportExists reports whether an originality report is available.
func (c *Client) ReportExists(ctx context.Context, sessionID string) (bool, error) {
	var out bool
	err := c.do(ctx, http.MethodGet, "/reports/exists/"+sessionID, nil, &out)
	return out, err
}
