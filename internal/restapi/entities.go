// Package restapi is a typed client for the platform's REST collaborators.
// The console only consumes these endpoints; none of their business rules
// live here.
package restapi

// User is a platform account.
type User struct {
	ID     int    `json:"id,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	RoleID int    `json:"roleId,omitempty"`
}

// Role is a named permission group.
type Role struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// Team groups students working on submissions together.
type Team struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ClassID     int    `json:"classId,omitempty"`
	Members     []User `json:"members,omitempty"`
}

// Class is a course instance owned by a professor.
type Class struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	ProfessorID int    `json:"professorId,omitempty"`
}

// Assignment is a task published to a class.
type Assignment struct {
	ID          int    `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ClassID     int    `json:"classId,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

// Submission is a team's delivery for an assignment.
type Submission struct {
	ID              int    `json:"id,omitempty"`
	AssignmentID    int    `json:"assignmentId"`
	TeamID          int    `json:"teamId"`
	FileURL         string `json:"fileUrl,omitempty"`
	GitHubURL       string `json:"gitHubUrl,omitempty"`
	SubmittedAt     string `json:"submittedAt,omitempty"`
	AssignmentTitle string `json:"assignmentTitle,omitempty"`
	TeamName        string `json:"teamName,omitempty"`
	ClassID         int    `json:"classId,omitempty"`
	ClassName       string `json:"className,omitempty"`
}

// Evaluation is a score attached to a submission by an evaluator.
type Evaluation struct {
	ID             int     `json:"id,omitempty"`
	SubmissionID   int     `json:"submissionId"`
	EvaluatorID    int     `json:"evaluatorId"`
	Score          float64 `json:"score"`
	EvaluationType string  `json:"evaluationType,omitempty"`
	Criteria       string  `json:"criteria,omitempty"`
	Feedback       string  `json:"feedback,omitempty"`
	EvaluationDate string  `json:"evaluationDate,omitempty"`
}

// Feedback is qualitative commentary on a submission.
type Feedback struct {
	ID           int    `json:"id,omitempty"`
	SubmissionID int    `json:"submissionId"`
	FeedbackType string `json:"feedbackType,omitempty"`
	Content      string `json:"content"`
	Strengths    string `json:"strengths,omitempty"`
	Improvements string `json:"improvements,omitempty"`
	FeedbackDate string `json:"feedbackDate,omitempty"`
}

// PlagiarismRequest triggers originality detection for an assignment.
type PlagiarismRequest struct {
	AssignmentID int    `json:"assignmentId"`
	Language     string `json:"language,omitempty"`
}

// PlagiarismResult is the detection service's summary response.
type PlagiarismResult struct {
	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HealthStatus is the generic health probe response.
type HealthStatus struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// ExcelImportResult summarizes an Excel import or validation run.
type ExcelImportResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Imported int      `json:"imported,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ExcelFormatInfo describes the spreadsheet layout an import endpoint expects.
type ExcelFormatInfo struct {
	Description string   `json:"description,omitempty"`
	Sheets      []string `json:"sheets,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Example     string   `json:"example,omitempty"`
}
