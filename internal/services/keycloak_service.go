package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/config"
)

const (
	realmPrefix        = "/auth/realms/"
	authEndpoint       = "/protocol/openid-connect/token/"
	adminRealmPrefix   = "/auth/admin/realms/"
	adminClientID      = "admin-cli"
	tokenRefreshLeeway = 30 * time.Second
)

// TokenPair bundles the access and refresh tokens returned by Keycloak.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Role is a realm role as listed by the Keycloak admin API.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// KeycloakUser is the subset of the admin user representation we consume.
type KeycloakUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// CreateUserInput carries everything needed to provision a Keycloak user.
type CreateUserInput struct {
	Username    string
	Email       string
	FirstName   string
	LastName    string
	Password    string
	Permissions []string
}

// CreateUserResult is the outcome of provisioning: the new user's tokens
// plus the provider-assigned user id.
type CreateUserResult struct {
	TokenPair
	UserID string
}

// KeycloakService adapts the external Keycloak identity provider. The admin
// access token is cached across requests and refreshed when close to expiry
// or rejected by the provider.
type KeycloakService struct {
	baseURL       string
	realm         string
	clientID      string
	clientSecret  string
	adminUser     string
	adminPassword string

	httpClient *http.Client
	log        *zap.Logger

	mu               sync.RWMutex
	adminToken       string
	adminTokenExpiry time.Time
}

// NewKeycloakService constructs a KeycloakService from configuration.
func NewKeycloakService(cfg *config.Config, log *zap.Logger) *KeycloakService {
	return &KeycloakService{
		baseURL:       strings.TrimRight(cfg.KeycloakURI, "/"),
		realm:         cfg.KeycloakRealm,
		clientID:      cfg.KeycloakClientID,
		clientSecret:  cfg.KeycloakClientSecret,
		adminUser:     cfg.KeycloakAdminUser,
		adminPassword: cfg.KeycloakAdminPassword,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		log:           log,
	}
}

func (s *KeycloakService) tokenURL() string {
	return s.baseURL + realmPrefix + s.realm + authEndpoint
}

func (s *KeycloakService) adminURL(endpoint string) string {
	return s.baseURL + adminRealmPrefix + s.realm + endpoint
}

// GetToken exchanges a username and password for a token pair.
func (s *KeycloakService) GetToken(username, password string) (*TokenPair, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"username":      {username},
		"password":      {password},
	}

	status, body, err := s.postForm(s.tokenURL(), form)
	if err != nil {
		return nil, apperrors.Wrap(err, "identity provider unreachable")
	}
	if status != http.StatusOK {
		return nil, apperrors.Keycloak("Error in username or password", status)
	}

	return decodeTokenPair(body)
}

// RefreshToken exchanges a refresh token for a fresh token pair.
func (s *KeycloakService) RefreshToken(refreshToken string) (*TokenPair, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"refresh_token": {refreshToken},
	}

	status, body, err := s.postForm(s.tokenURL(), form)
	if err != nil {
		return nil, apperrors.Wrap(err, "identity provider unreachable")
	}
	if status != http.StatusOK {
		return nil, apperrors.BadRequest("Error in refresh token")
	}

	return decodeTokenPair(body)
}

// AdminAccessToken returns a cached admin token, fetching a new one when
// the cache is empty or within the refresh leeway of its expiry. It doubles
// as the provider reachability check before mutating local state.
func (s *KeycloakService) AdminAccessToken() (string, error) {
	if token, ok := s.cachedAdminToken(); ok {
		return token, nil
	}
	return s.refreshAdminToken()
}

func (s *KeycloakService) cachedAdminToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.adminToken == "" {
		return "", false
	}
	if !s.adminTokenExpiry.IsZero() && time.Now().Add(tokenRefreshLeeway).After(s.adminTokenExpiry) {
		return "", false
	}
	return s.adminToken, true
}

func (s *KeycloakService) refreshAdminToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {adminClientID},
		"username":   {s.adminUser},
		"password":   {s.adminPassword},
	}

	status, body, err := s.postForm(s.tokenURL(), form)
	if err != nil {
		return "", apperrors.Wrap(err, "identity provider unreachable")
	}
	if status != http.StatusOK {
		return "", apperrors.Keycloak(string(body), http.StatusInternalServerError)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", apperrors.Wrap(err, "unmarshal admin token response")
	}
	if payload.AccessToken == "" {
		return "", apperrors.Keycloak("admin token response missing access_token", http.StatusInternalServerError)
	}

	s.adminToken = payload.AccessToken
	if payload.ExpiresIn > 0 {
		s.adminTokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	} else {
		s.adminTokenExpiry = time.Now().Add(5 * time.Minute)
	}

	return s.adminToken, nil
}

func (s *KeycloakService) invalidateAdminToken() {
	s.mu.Lock()
	s.adminToken = ""
	s.adminTokenExpiry = time.Time{}
	s.mu.Unlock()
}

// CreateUser provisions a Keycloak user: create, look the identity back up
// for its provider id, assign the realm roles matching the declared
// permissions, then log the new user in.
func (s *KeycloakService) CreateUser(input CreateUserInput) (*CreateUserResult, error) {
	payload := map[string]interface{}{
		"email":     input.Email,
		"username":  input.Username,
		"firstName": input.FirstName,
		"lastName":  input.LastName,
		"credentials": []map[string]interface{}{
			{"value": input.Password, "type": "password", "temporary": false},
		},
		"enabled":       true,
		"emailVerified": true,
		"access": map[string]bool{
			"manageGroupMembership": true,
			"view":                  true,
			"mapRoles":              true,
			"impersonate":           true,
			"manage":                true,
		},
	}

	if _, err := s.adminRequest(http.MethodPost, "/users", payload); err != nil {
		return nil, err
	}

	user, err := s.GetUserByUsername(input.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Keycloak("created user not found", http.StatusInternalServerError)
	}

	roles, err := s.GetAllRoles()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(input.Permissions))
	for _, name := range input.Permissions {
		wanted[name] = true
	}
	var assign []Role
	for _, role := range roles {
		if wanted[role.Name] {
			assign = append(assign, role)
		}
	}

	if err := s.AssignRoles(user.ID, assign); err != nil {
		return nil, err
	}

	tokens, err := s.GetToken(input.Username, input.Password)
	if err != nil {
		return nil, err
	}

	return &CreateUserResult{TokenPair: *tokens, UserID: user.ID}, nil
}

// GetUserByUsername looks up a user via the admin API; nil when absent.
func (s *KeycloakService) GetUserByUsername(username string) (*KeycloakUser, error) {
	body, err := s.adminRequest(http.MethodGet, "/users?username="+url.QueryEscape(username), nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, apperrors.Wrap(err, "unmarshal user lookup response")
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// GetAllRoles lists the realm roles available for assignment.
func (s *KeycloakService) GetAllRoles() ([]Role, error) {
	body, err := s.adminRequest(http.MethodGet, "/roles", nil)
	if err != nil {
		return nil, err
	}

	var roles []Role
	if err := json.Unmarshal(body, &roles); err != nil {
		return nil, apperrors.Wrap(err, "unmarshal role list response")
	}
	return roles, nil
}

// AssignRoles maps realm roles onto a user.
func (s *KeycloakService) AssignRoles(userID string, roles []Role) error {
	if len(roles) == 0 {
		return nil
	}
	_, err := s.adminRequest(http.MethodPost, "/users/"+userID+"/role-mappings/realm", roles)
	return err
}

// ResetPassword sets a new non-temporary credential for a user.
func (s *KeycloakService) ResetPassword(userID, newPassword string) error {
	payload := map[string]interface{}{
		"type":      "password",
		"value":     newPassword,
		"temporary": false,
	}
	_, err := s.adminRequest(http.MethodPut, "/users/"+userID+"/reset-password", payload)
	return err
}

// adminRequest performs an admin-authenticated JSON request, retrying once
// with a forced token refresh when the provider answers 401.
func (s *KeycloakService) adminRequest(method, endpoint string, body interface{}) ([]byte, error) {
	token, err := s.AdminAccessToken()
	if err != nil {
		return nil, err
	}

	status, respBody, err := s.doJSON(method, s.adminURL(endpoint), token, body)
	if err != nil {
		return nil, apperrors.Wrap(err, "identity provider unreachable")
	}

	if status == http.StatusUnauthorized {
		s.invalidateAdminToken()
		token, err = s.AdminAccessToken()
		if err != nil {
			return nil, err
		}
		status, respBody, err = s.doJSON(method, s.adminURL(endpoint), token, body)
		if err != nil {
			return nil, apperrors.Wrap(err, "identity provider unreachable")
		}
	}

	if status >= 300 {
		s.log.Warn("keycloak admin request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", status))
		return nil, apperrors.Keycloak(providerErrorMessage(respBody), status)
	}

	return respBody, nil
}

func (s *KeycloakService) doJSON(method, targetURL, token string, body interface{}) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, targetURL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func (s *KeycloakService) postForm(targetURL string, form url.Values) (int, []byte, error) {
	resp, err := s.httpClient.PostForm(targetURL, form)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func decodeTokenPair(body []byte) (*TokenPair, error) {
	var tokens TokenPair
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, apperrors.Wrap(err, "unmarshal token response")
	}
	return &tokens, nil
}

func providerErrorMessage(body []byte) string {
	var payload struct {
		ErrorMessage string `json:"errorMessage"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorMessage != "" {
			return payload.ErrorMessage
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
