package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the platform backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, body)
}

// Client talks to the platform REST API under a base path.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL (e.g. http://localhost:8080/api).
// A nil httpClient gets a 30 second timeout default.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// do performs one JSON round trip. A nil in sends no body; a nil out
// discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// =================== Users ===================

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	return out, c.do(ctx, http.MethodGet, "/users", nil, &out)
}

func (c *Client) GetUser(ctx context.Context, id int) (*User, error) {
	var out User
	return &out, c.do(ctx, http.MethodGet, "/users/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var out User
	return &out, c.do(ctx, http.MethodGet, "/users/email/"+url.PathEscape(email), nil, &out)
}

func (c *Client) ListUsersByRole(ctx context.Context, roleID int) ([]User, error) {
	var out []User
	return out, c.do(ctx, http.MethodGet, "/users/role/"+strconv.Itoa(roleID), nil, &out)
}

func (c *Client) SearchUsersByName(ctx context.Context, name string) ([]User, error) {
	var out []User
	return out, c.do(ctx, http.MethodGet, "/users/search?name="+url.QueryEscape(name), nil, &out)
}

func (c *Client) CreateUser(ctx context.Context, u *User) (*User, error) {
	var out User
	return &out, c.do(ctx, http.MethodPost, "/users", u, &out)
}

func (c *Client) UpdateUser(ctx context.Context, id int, u *User) (*User, error) {
	var out User
	return &out, c.do(ctx, http.MethodPut, "/users/"+strconv.Itoa(id), u, &out)
}

func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/users/"+strconv.Itoa(id), nil, nil)
}

// =================== Roles ===================

func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	return out, c.do(ctx, http.MethodGet, "/roles", nil, &out)
}

func (c *Client) GetRole(ctx context.Context, id int) (*Role, error) {
	var out Role
	return &out, c.do(ctx, http.MethodGet, "/roles/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var out Role
	return &out, c.do(ctx, http.MethodGet, "/roles/name/"+url.PathEscape(name), nil, &out)
}

func (c *Client) CreateRole(ctx context.Context, r *Role) (*Role, error) {
	var out Role
	return &out, c.do(ctx, http.MethodPost, "/roles", r, &out)
}

func (c *Client) UpdateRole(ctx context.Context, id int, r *Role) (*Role, error) {
	var out Role
	return &out, c.do(ctx, http.MethodPut, "/roles/"+strconv.Itoa(id), r, &out)
}

func (c *Client) DeleteRole(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/roles/"+strconv.Itoa(id), nil, nil)
}

// =================== Teams ===================

func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var out []Team
	return out, c.do(ctx, http.MethodGet, "/teams", nil, &out)
}

func (c *Client) GetTeam(ctx context.Context, id int) (*Team, error) {
	var out Team
	return &out, c.do(ctx, http.MethodGet, "/teams/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) GetTeamByName(ctx context.Context, name string) (*Team, error) {
	var out Team
	return &out, c.do(ctx, http.MethodGet, "/teams/name/"+url.PathEscape(name), nil, &out)
}

func (c *Client) ListTeamsByUser(ctx context.Context, userID int) ([]Team, error) {
	var out []Team
	return out, c.do(ctx, http.MethodGet, "/teams/user/"+strconv.Itoa(userID), nil, &out)
}

func (c *Client) SearchTeamsByName(ctx context.Context, name string) ([]Team, error) {
	var out []Team
	return out, c.do(ctx, http.MethodGet, "/teams/search?name="+url.QueryEscape(name), nil, &out)
}

func (c *Client) CreateTeam(ctx context.Context, t *Team) (*Team, error) {
	var out Team
	return &out, c.do(ctx, http.MethodPost, "/teams", t, &out)
}

func (c *Client) UpdateTeam(ctx context.Context, id int, t *Team) (*Team, error) {
	var out Team
	return &out, c.do(ctx, http.MethodPut, "/teams/"+strconv.Itoa(id), t, &out)
}

func (c *Client) DeleteTeam(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/teams/"+strconv.Itoa(id), nil, nil)
}

func (c *Client) AddUserToTeam(ctx context.Context, teamID, userID int) error {
	path := fmt.Sprintf("/teams/%d/users/%d", teamID, userID)
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

func (c *Client) RemoveUserFromTeam(ctx context.Context, teamID, userID int) error {
	path := fmt.Sprintf("/teams/%d/users/%d", teamID, userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ReplaceTeamUsers swaps the team's member list wholesale.
func (c *Client) ReplaceTeamUsers(ctx context.Context, teamID int, userIDs []int) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/teams/%d/users", teamID), userIDs, nil)
}

// =================== Classes ===================

func (c *Client) ListClasses(ctx context.Context) ([]Class, error) {
	var out []Class
	return out, c.do(ctx, http.MethodGet, "/classes", nil, &out)
}

func (c *Client) GetClass(ctx context.Context, id int) (*Class, error) {
	var out Class
	return &out, c.do(ctx, http.MethodGet, "/classes/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) CreateClass(ctx context.Context, cl *Class) (*Class, error) {
	var out Class
	return &out, c.do(ctx, http.MethodPost, "/classes", cl, &out)
}

func (c *Client) UpdateClass(ctx context.Context, id int, cl *Class) (*Class, error) {
	var out Class
	return &out, c.do(ctx, http.MethodPut, "/classes/"+strconv.Itoa(id), cl, &out)
}

func (c *Client) DeleteClass(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/classes/"+strconv.Itoa(id), nil, nil)
}

func (c *Client) AddTeamToClass(ctx context.Context, classID, teamID int) error {
	path := fmt.Sprintf("/classes/%d/teams/%d", classID, teamID)
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

func (c *Client) RemoveTeamFromClass(ctx context.Context, classID, teamID int) error {
	path := fmt.Sprintf("/classes/%d/teams/%d", classID, teamID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) ListClassTeams(ctx context.Context, classID int) ([]Team, error) {
	var out []Team
	return out, c.do(ctx, http.MethodGet, fmt.Sprintf("/classes/%d/teams", classID), nil, &out)
}

func (c *Client) ListClassesByProfessor(ctx context.Context, professorID int) ([]Class, error) {
	var out []Class
	return out, c.do(ctx, http.MethodGet, "/classes/professor/"+strconv.Itoa(professorID), nil, &out)
}

func (c *Client) ListClassesByTeam(ctx context.Context, teamID int) ([]Class, error) {
	var out []Class
	return out, c.do(ctx, http.MethodGet, "/classes/team/"+strconv.Itoa(teamID), nil, &out)
}

// =================== Assignments ===================

func (c *Client) ListAssignments(ctx context.Context) ([]Assignment, error) {
	var out []Assignment
	return out, c.do(ctx, http.MethodGet, "/assignments", nil, &out)
}

func (c *Client) GetAssignment(ctx context.Context, id int) (*Assignment, error) {
	var out Assignment
	return &out, c.do(ctx, http.MethodGet, "/assignments/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) CreateAssignment(ctx context.Context, a *Assignment) (*Assignment, error) {
	var out Assignment
	return &out, c.do(ctx, http.MethodPost, "/assignments", a, &out)
}

func (c *Client) UpdateAssignment(ctx context.Context, id int, a *Assignment) (*Assignment, error) {
	var out Assignment
	return &out, c.do(ctx, http.MethodPut, "/assignments/"+strconv.Itoa(id), a, &out)
}

func (c *Client) DeleteAssignment(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/assignments/"+strconv.Itoa(id), nil, nil)
}

// =================== Submissions ===================

func (c *Client) ListSubmissions(ctx context.Context) ([]Submission, error) {
	var out []Submission
	return out, c.do(ctx, http.MethodGet, "/submissions", nil, &out)
}

func (c *Client) GetSubmission(ctx context.Context, id int) (*Submission, error) {
	var out Submission
	return &out, c.do(ctx, http.MethodGet, "/submissions/"+strconv.Itoa(id), nil, &out)
}

func (c *Client) CreateSubmission(ctx context.Context, s *Submission) (*Submission, error) {
	var out Submission
	return &out, c.do(ctx, http.MethodPost, "/submissions", s, &out)
}

func (c *Client) UpdateSubmission(ctx context.Context, id int, s *Submission) (*Submission, error) {
	var out Submission
	return &out, c.do(ctx, http.MethodPut, "/submissions/"+strconv.Itoa(id), s, &out)
}

func (c *Client) DeleteSubmission(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/submissions/"+strconv.Itoa(id), nil, nil)
}
