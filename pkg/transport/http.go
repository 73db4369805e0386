package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/revsync/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// ConnectTimeout bounds how long establishing a connection may take.
	ConnectTimeout = 3 * time.Second

	// RequestTimeout bounds an entire request, including reading the
	// response body.
	RequestTimeout = 40 * time.Second

	// ServerVersionHeader is the response header in which the server reports
	// its version.
	ServerVersionHeader = "X-Server-Version"

	pingSuccess = "SUCCESS"
)

// tokens are the plain text responses that the server uses to reject a
// request that conflicts with its state.
var tokens = map[string]errors.ConflictReason{
	"PROJECT_DOES_NOT_EXIST":  errors.NotFound,
	"ALREADY_EXISTS":          errors.AlreadyExists,
	"FOLDER_ALREADY_EXISTS":   errors.AlreadyExists,
	"FILE_ALREADY_EXISTS":     errors.AlreadyExists,
	"CHECKEDOUT_FILE":         errors.CheckedOutConflict,
	"FILE_ALREADY_CHECKEDOUT": errors.AlreadyCheckedOut,
	"FILE_NOT_CHECKEDOUT":     errors.NotCheckedOut,
}

// Config contains what's needed to connect to the server.
type Config struct {
	// Server is the base URL of the server, e.g. `https://revsync:5000`.
	Server string

	Username string
	Password string

	// CACert is the PEM encoded certificate of the authority that signed the
	// server's certificate. If it's empty, the system roots are used.
	CACert []byte
}

// HTTPClient implements Client over HTTPS with basic authentication.
type HTTPClient struct {
	server   string
	username string
	password string
	client   *http.Client
}

// New creates a client for the server in `cfg`. It doesn't contact the
// server.
func New(cfg Config) (*HTTPClient, error) {
	if cfg.Server == "" {
		return nil, errors.MissingFieldError{Field: "server"}
	}

	if _, err := url.Parse(cfg.Server); err != nil {
		return nil, errors.WithContext(err, "parse server address")
	}

	httpTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: ConnectTimeout,
	}

	if len(cfg.CACert) != 0 {
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(cfg.CACert) {
			return nil, errors.NewFriendlyError("The CA certificate could not be parsed. " +
				"It must be PEM encoded.")
		}
		httpTransport.TLSClientConfig = &tls.Config{RootCAs: roots}
	}

	return &HTTPClient{
		server:   strings.TrimSuffix(cfg.Server, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client: &http.Client{
			Transport: httpTransport,
			Timeout:   RequestTimeout,
		},
	}, nil
}

// Ping implements the Client interface.
func (c *HTTPClient) Ping(ctx context.Context) (string, error) {
	body, header, err := c.do(ctx, "ping", http.MethodGet, "ping", nil, nil)
	if err != nil {
		return "", err
	}

	if string(bytes.TrimSpace(body)) != pingSuccess {
		return "", errors.ServerError{Op: "ping", Status: http.StatusOK, Body: string(body)}
	}
	return header.Get(ServerVersionHeader), nil
}

type projectList struct {
	Projects []string `json:"projects"`
}

type userList struct {
	Users []string `json:"users"`
}

// ListProjects implements the Client interface.
func (c *HTTPClient) ListProjects(ctx context.Context) ([]string, error) {
	var resp projectList
	err := c.getJSON(ctx, "list projects", "getprojectlist", nil, &resp)
	return resp.Projects, err
}

// ListUsers implements the Client interface.
func (c *HTTPClient) ListUsers(ctx context.Context) ([]string, error) {
	var resp userList
	err := c.getJSON(ctx, "list users", "getusers", nil, &resp)
	return resp.Users, err
}

// ProjectUsers implements the Client interface.
func (c *HTTPClient) ProjectUsers(ctx context.Context, project string) ([]string, error) {
	var resp userList
	err := c.getJSON(ctx, "list project users", "getprojectusers", projectQuery(project), &resp)
	return resp.Users, err
}

// ChangePassword implements the Client interface. The server expects a form
// rather than JSON.
func (c *HTTPClient) ChangePassword(ctx context.Context, password string) error {
	_, err := c.call(ctx, "change password", http.MethodPost, "changepwd", nil,
		url.Values{"password": []string{password}}, nil)
	return err
}

// AddUser implements the Client interface.
func (c *HTTPClient) AddUser(ctx context.Context, username, password string) error {
	form := url.Values{
		"username": []string{username},
		"password": []string{password},
	}
	_, err := c.call(ctx, "add user", http.MethodPost, "adduser", nil, form, []string{username})
	return err
}

// DeleteUsers implements the Client interface.
func (c *HTTPClient) DeleteUsers(ctx context.Context, users []string) error {
	_, err := c.call(ctx, "delete users", http.MethodPost, "deluser", nil, userList{users}, nil)
	return err
}

type projectUsersRequest struct {
	Project string   `json:"project"`
	Users   []string `json:"users"`
}

// AddProjectUsers implements the Client interface.
func (c *HTTPClient) AddProjectUsers(ctx context.Context, project string, users []string) error {
	_, err := c.call(ctx, "add project users", http.MethodPost, "addprojectusers", nil,
		projectUsersRequest{project, users}, []string{project})
	return err
}

// RemoveProjectUsers implements the Client interface.
func (c *HTTPClient) RemoveProjectUsers(ctx context.Context, project string, users []string) error {
	_, err := c.call(ctx, "remove project users", http.MethodPost, "deleteprojectuser", nil,
		projectUsersRequest{project, users}, []string{project})
	return err
}

// OpenProject implements the Client interface.
func (c *HTTPClient) OpenProject(ctx context.Context, project string) ([]byte, error) {
	return c.call(ctx, "open project", http.MethodGet, "openproject",
		projectQuery(project), nil, []string{project})
}

// CreateProject implements the Client interface.
func (c *HTTPClient) CreateProject(ctx context.Context, project string, users []string) ([]byte, error) {
	return c.call(ctx, "create project", http.MethodPost, "createproject", nil,
		projectUsersRequest{project, users}, []string{project})
}

// DeleteProject implements the Client interface.
func (c *HTTPClient) DeleteProject(ctx context.Context, project string) error {
	_, err := c.call(ctx, "delete project", http.MethodGet, "deleteproject",
		projectQuery(project), nil, []string{project})
	return err
}

type folderRequest struct {
	Project string   `json:"project"`
	Path    []string `json:"path"`
	Dirname string   `json:"dirname"`
}

// MakeFolder implements the Client interface.
func (c *HTTPClient) MakeFolder(ctx context.Context, project string, parent []string, name string) error {
	_, err := c.call(ctx, "make folder", http.MethodPost, "mkdir", nil,
		folderRequest{project, parent, name}, join(parent, name))
	return err
}

// DeleteFolder implements the Client interface.
func (c *HTTPClient) DeleteFolder(ctx context.Context, project string, path []string) error {
	if len(path) == 0 {
		return errors.New("empty path")
	}

	parent, name := path[:len(path)-1], path[len(path)-1]
	_, err := c.call(ctx, "delete folder", http.MethodPost, "deletedir", nil,
		folderRequest{project, parent, name}, path)
	return err
}

// RenameFolder implements the Client interface.
func (c *HTTPClient) RenameFolder(ctx context.Context, project string, path []string, name string) error {
	if len(path) == 0 {
		return errors.New("empty path")
	}

	target := join(path[:len(path)-1], name)
	_, err := c.call(ctx, "rename folder", http.MethodPost, "rename", nil,
		folderRequest{project, path, name}, target)
	return err
}

type moveRequest struct {
	Project    string   `json:"project_name"`
	SourcePath []string `json:"source_path"`
	DestPath   []string `json:"dest_path"`
}

// Move implements the Client interface.
func (c *HTTPClient) Move(ctx context.Context, project string, src, dest []string) error {
	_, err := c.call(ctx, "move", http.MethodPost, "move", nil,
		moveRequest{project, src, dest}, src)
	return err
}

type deleteFileRequest struct {
	Project  string   `json:"project"`
	Path     []string `json:"path"`
	Filename string   `json:"filename"`
}

// DeleteFile implements the Client interface.
func (c *HTTPClient) DeleteFile(ctx context.Context, project string, path []string) error {
	if len(path) == 0 {
		return errors.New("empty path")
	}

	parent, name := path[:len(path)-1], path[len(path)-1]
	_, err := c.call(ctx, "delete file", http.MethodPost, "deletefile", nil,
		deleteFileRequest{project, parent, name}, path)
	return err
}

type uploadRequest struct {
	Path     []string `json:"path"`
	Project  string   `json:"project"`
	File     []byte   `json:"file"`
	FileName string   `json:"file_name"`
}

// UploadFile implements the Client interface.
func (c *HTTPClient) UploadFile(ctx context.Context, project string, folder []string,
	name string, contents []byte) error {
	_, err := c.call(ctx, "upload file", http.MethodPost, "push", nil,
		uploadRequest{folder, project, nonNil(contents), name}, join(folder, name))
	return err
}

// UploadArtifact implements the Client interface.
func (c *HTTPClient) UploadArtifact(ctx context.Context, project string, binary []string,
	fileName string, contents []byte) error {
	_, err := c.call(ctx, "upload artifact", http.MethodPost, "pushdbfile", nil,
		uploadRequest{binary, project, nonNil(contents), fileName}, join(binary, fileName))
	return err
}

type fileRequest struct {
	Project  string   `json:"project"`
	Path     []string `json:"path"`
	FileName string   `json:"file_name"`
}

type fileResponse struct {
	File    []byte `json:"file"`
	Changes []byte `json:"changes"`
}

// DownloadFile implements the Client interface.
func (c *HTTPClient) DownloadFile(ctx context.Context, project string, folder []string,
	name string) ([]byte, error) {
	var resp fileResponse
	err := c.postJSON(ctx, "download file", "getfile",
		fileRequest{project, folder, name}, join(folder, name), &resp)
	return resp.File, err
}

type versionedFileRequest struct {
	Project  string   `json:"project"`
	Path     []string `json:"path"`
	FileName string   `json:"file_name"`
	Version  int      `json:"version"`
}

// Checkout implements the Client interface.
func (c *HTTPClient) Checkout(ctx context.Context, ref ArtifactRef, version int) (Artifact, error) {
	var resp fileResponse
	err := c.postJSON(ctx, "checkout", "checkout",
		versionedFileRequest{ref.Project, ref.Binary, ref.FileName, version}, ref.path(), &resp)
	return Artifact{Contents: resp.File, Changes: resp.Changes}, err
}

type checkinRequest struct {
	Path     []string `json:"path"`
	Project  string   `json:"project"`
	File     []byte   `json:"file"`
	FileName string   `json:"file_name"`
	Checkout bool     `json:"checkout"`
	Comment  string   `json:"comment"`
	Changes  []byte   `json:"changes"`
}

// Checkin implements the Client interface.
func (c *HTTPClient) Checkin(ctx context.Context, ref ArtifactRef, upload Checkin) error {
	req := checkinRequest{
		Path:     ref.Binary,
		Project:  ref.Project,
		File:     nonNil(upload.Contents),
		FileName: ref.FileName,
		Checkout: upload.KeepCheckout,
		Comment:  upload.Comment,
		Changes:  nonNil(upload.Changes),
	}
	_, err := c.call(ctx, "checkin", http.MethodPost, "checkin", nil, req, ref.path())
	return err
}

// UndoCheckout implements the Client interface.
func (c *HTTPClient) UndoCheckout(ctx context.Context, ref ArtifactRef) error {
	_, err := c.call(ctx, "undo checkout", http.MethodPost, "undocheckout", nil,
		fileRequest{ref.Project, ref.Binary, ref.FileName}, ref.path())
	return err
}

// OpenArtifact implements the Client interface.
func (c *HTTPClient) OpenArtifact(ctx context.Context, ref ArtifactRef, version int) (Artifact, error) {
	var resp fileResponse
	err := c.postJSON(ctx, "open artifact", "opendbfile",
		versionedFileRequest{ref.Project, ref.Binary, ref.FileName, version}, ref.path(), &resp)
	return Artifact{Contents: resp.File, Changes: resp.Changes}, err
}

func (c *HTTPClient) getJSON(ctx context.Context, op, endpoint string, query url.Values,
	out interface{}) error {
	body, err := c.call(ctx, op, http.MethodGet, endpoint, query, nil, nil)
	if err != nil {
		return err
	}
	return decode(op, body, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, op, endpoint string, req interface{},
	path []string, out interface{}) error {
	body, err := c.call(ctx, op, http.MethodPost, endpoint, nil, req, path)
	if err != nil {
		return err
	}
	return decode(op, body, out)
}

// call performs the request, and converts conflict tokens in the response
// into a ConflictError for `path`.
func (c *HTTPClient) call(ctx context.Context, op, method, endpoint string, query url.Values,
	req interface{}, path []string) ([]byte, error) {
	body, _, err := c.do(ctx, op, method, endpoint, query, req)
	if err != nil {
		return nil, err
	}

	if reason, ok := tokens[string(bytes.TrimSpace(body))]; ok {
		return nil, errors.ConflictError{Reason: reason, Path: path}
	}
	return body, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, endpoint string, query url.Values,
	req interface{}) ([]byte, http.Header, error) {
	target := c.server + "/" + endpoint
	if len(query) != 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	var contentType string
	switch body := req.(type) {
	case nil:
	case url.Values:
		reqBody = strings.NewReader(body.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return nil, nil, errors.WithContext(err, "marshal request")
		}
		reqBody = bytes.NewReader(reqJSON)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, nil, errors.WithContext(err, "create request")
	}
	httpReq.SetBasicAuth(c.username, c.password)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, nil, errors.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.TransportError{Op: op, Err: err}
	}

	log.WithFields(log.Fields{
		"op":     op,
		"status": resp.StatusCode,
		"size":   len(body),
	}).Debug("Received server response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, errors.AuthError{Username: c.username}
	case resp.StatusCode != http.StatusOK:
		return nil, nil, errors.ServerError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   string(bytes.TrimSpace(body)),
		}
	}
	return body, resp.Header, nil
}

func decode(op string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return errors.WithContext(err, op+": decode response")
	}
	return nil
}

func projectQuery(project string) url.Values {
	return url.Values{"project": []string{project}}
}

func (ref ArtifactRef) path() []string {
	return join(ref.Binary, ref.FileName)
}

// nonNil makes sure that empty payloads are sent as an empty string rather
// than null.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func join(parent []string, name string) []string {
	return append(append([]string{}, parent...), name)
}
