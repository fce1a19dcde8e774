// Package testutil provides a fake portal backend for package tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// APIPrefix is the path prefix the fake portal serves under.
const APIPrefix = "/api"

// Envelope selects how the fake portal wraps collection responses.
type Envelope int

const (
	// EnvelopePage wraps lists as {count, next, previous, results}.
	EnvelopePage Envelope = iota
	// EnvelopeList returns bare arrays.
	EnvelopeList
	// EnvelopeData wraps every body as {success, data}.
	EnvelopeData
)

// LoginShape selects the login response layout.
type LoginShape int

const (
	// LoginFlat is {access, refresh, user}.
	LoginFlat LoginShape = iota
	// LoginNested is {token: {access_token, refresh_token}, user}.
	LoginNested
	// LoginData is {success, data: {access, refresh, user}}.
	LoginData
)

// Fault is a canned response for one method and path.
type Fault struct {
	Status      int
	Body        string
	ContentType string // default application/json
	Times       int    // 0 means every request
}

// Request is a recorded request.
type Request struct {
	Method        string
	Path          string // without APIPrefix
	Query         string
	Authorization string
	ContentType   string
}

// User is an account known to the fake portal.
type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	password string
}

// Portal is an in-memory portal REST backend served over httptest.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Portal struct {
	Server *httptest.Server

	secret []byte

	mu          sync.Mutex
	collections map[string][]map[string]interface{}
	nextID      int
	faults      map[string]*Fault
	requests    []Request
	users       map[string]*User
	access      map[string]string // access token -> email
	envelope    Envelope
	loginShape  LoginShape
	requireAuth bool
	delay       time.Duration
}

// NewPortal starts a fake portal and stops it when the test ends.
func NewPortal(t *testing.T) *Portal {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p := &Portal{
		secret:      []byte("portal-test-secret"),
		collections: make(map[string][]map[string]interface{}),
		nextID:      1000,
		faults:      make(map[string]*Fault),
		users:       make(map[string]*User),
		access:      make(map[string]string),
	}

	engine := gin.New()
	engine.Use(p.record, p.inject)
	api := engine.Group(APIPrefix)
	api.POST("/auth/login/", p.login)
	api.POST("/auth/register/", p.register)
	api.POST("/auth/refresh/", p.refresh)
	api.GET("/auth/user/", p.currentUser)
	engine.NoRoute(p.collection)

	p.Server = httptest.NewServer(engine)
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the base URL clients should be configured with.
func (p *Portal) URL() string {
	return p.Server.URL + APIPrefix
}

// SetEnvelope changes the response wrapper.
func (p *Portal) SetEnvelope(e Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelope = e
}

// SetLoginShape changes the login response layout.
func (p *Portal) SetLoginShape(s LoginShape) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginShape = s
}

// RequireAuth makes collection routes reject requests without a valid
// access token.
func (p *Portal) RequireAuth(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requireAuth = on
}

// SetDelay delays every collection response.
func (p *Portal) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Fail installs a canned response for method and path (without APIPrefix).
func (p *Portal) Fail(method, path string, f Fault) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fault := f
	p.faults[method+" "+path] = &fault
}

// ClearFaults removes every canned response.
func (p *Portal) ClearFaults() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = make(map[string]*Fault)
}

// Seed appends items to the collection at path, assigning ids where missing.
func (p *Portal) Seed(path string, items ...map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, it := range items {
		copied := make(map[string]interface{}, len(it)+1)
		for k, v := range it {
			copied[k] = v
		}
		if _, ok := copied["id"]; !ok {
			p.nextID++
			copied["id"] = p.nextID
		}
		p.collections[path] = append(p.collections[path], copied)
	}
}

// Items returns the stored items of the collection at path.
func (p *Portal) Items(path string) []map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]interface{}, len(p.collections[path]))
	copy(out, p.collections[path])
	return out
}

// AddUser registers an account and returns it.
func (p *Portal) AddUser(email, password, name, role string) User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.addUserLocked(email, password, name, role)
}

func (p *Portal) addUserLocked(email, password, name, role string) *User {
	p.nextID++
	u := &User{ID: p.nextID, Email: email, Name: name, Role: role, password: password}
	p.users[email] = u
	return u
}

// Requests returns every recorded request.
func (p *Portal) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// RequestCount counts recorded requests matching method and path.
func (p *Portal) RequestCount(method, path string) int {
	n := 0
	for _, r := range p.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (p *Portal) record(c *gin.Context) {
	p.mu.Lock()
	p.requests = append(p.requests, Request{
		Method:        c.Request.Method,
		Path:          strings.TrimPrefix(c.Request.URL.Path, APIPrefix),
		Query:         c.Request.URL.RawQuery,
		Authorization: c.GetHeader("Authorization"),
		ContentType:   c.GetHeader("Content-Type"),
	})
	p.mu.Unlock()
	c.Next()
}

// inject serves a canned fault when one matches.
func (p *Portal) inject(c *gin.Context) {
	key := c.Request.Method + " " + strings.TrimPrefix(c.Request.URL.Path, APIPrefix)

	p.mu.Lock()
	f, ok := p.faults[key]
	var fault Fault
	if ok {
		fault = *f
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				delete(p.faults, key)
			}
		}
	}
	p.mu.Unlock()

	if !ok {
		c.Next()
		return
	}
	contentType := fault.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(fault.Status, contentType, []byte(fault.Body))
	c.Abort()
}

func (p *Portal) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid login payload"})
		return
	}
	email := req.Email
	if email == "" {
		email = req.Username
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok || u.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}
	access, refresh := p.issueLocked(u)

	switch p.loginShape {
	case LoginNested:
		c.JSON(http.StatusOK, gin.H{
			"token": gin.H{"access_token": access, "refresh_token": refresh, "token_type": "Bearer"},
			"user":  u,
		})
	case LoginData:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"access": access, "refresh": refresh, "user": u},
		})
	default:
		c.JSON(http.StatusOK, gin.H{"access": access, "refresh": refresh, "user": u})
	}
}

func (p *Portal) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid registration payload"})
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"email": []string{"This field is required."}})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.users[req.Email]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"email": []string{"user with this email already exists."}})
		return
	}
	role := req.Role
	if role == "" {
		role = "alumni"
	}
	u := p.addUserLocked(req.Email, req.Password, req.Name, role)
	access, refresh := p.issueLocked(u)
	c.JSON(http.StatusCreated, gin.H{"user": u, "access": access, "refresh": refresh})
}

func (p *Portal) refresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"refresh": []string{"This field is required."}})
		return
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(req.Refresh, claims, func(*jwt.Token) (interface{}, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims["typ"] != "refresh" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
		return
	}
	email, _ := claims["email"].(string)

	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found"})
		return
	}
	access, _ := p.issueLocked(u)
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (p *Portal) currentUser(c *gin.Context) {
	u, ok := p.authenticate(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
		return
	}
	c.JSON(http.StatusOK, u)
}

// authenticate resolves the bearer token to a user.
func (p *Portal) authenticate(c *gin.Context) (User, bool) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	p.mu.Lock()
	defer p.mu.Unlock()
	email, ok := p.access[token]
	if !ok {
		return User{}, false
	}
	u, ok := p.users[email]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// issueLocked signs an access/refresh pair for u.
func (p *Portal) issueLocked(u *User) (string, string) {
	now := time.Now()
	sign := func(typ string, ttl time.Duration) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   strconv.Itoa(u.ID),
			"email": u.Email,
			"role":  u.Role,
			"typ":   typ,
			"iat":   now.Unix(),
			"exp":   now.Add(ttl).Unix(),
			"jti":   fmt.Sprintf("%s-%d-%d", typ, u.ID, len(p.access)),
		})
		signed, err := token.SignedString(p.secret)
		if err != nil {
			panic(err)
		}
		return signed
	}
	access := sign("access", 15*time.Minute)
	p.access[access] = u.Email
	return access, sign("refresh", 24*time.Hour)
}

// collection serves /<role>/<resource>/ and /<role>/<resource>/<id>/.
func (p *Portal) collection(c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, APIPrefix)
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if !strings.HasPrefix(c.Request.URL.Path, APIPrefix+"/") || len(segments) < 2 || len(segments) > 3 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}
	key := "/" + segments[0] + "/" + segments[1] + "/"
	id := ""
	if len(segments) == 3 {
		id = segments[2]
	}

	p.mu.Lock()
	requireAuth, delay := p.requireAuth, p.delay
	p.mu.Unlock()

	if requireAuth {
		if _, ok := p.authenticate(c); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return
		}
	}

	switch {
	case id == "" && c.Request.Method == http.MethodGet:
		p.list(c, key)
	case id == "" && c.Request.Method == http.MethodPost:
		p.create(c, key)
	case id != "" && c.Request.Method == http.MethodGet:
		p.withItem(c, key, id, func(i int, items []map[string]interface{}) {
			p.single(c, http.StatusOK, items[i])
		})
	case id != "" && (c.Request.Method == http.MethodPatch || c.Request.Method == http.MethodPut):
		patch, ok := p.bindItem(c)
		if !ok {
			return
		}
		p.withItem(c, key, id, func(i int, items []map[string]interface{}) {
			for k, v := range patch {
				if k != "id" {
					items[i][k] = v
				}
			}
			p.single(c, http.StatusOK, items[i])
		})
	case id != "" && c.Request.Method == http.MethodDelete:
		p.withItem(c, key, id, func(i int, items []map[string]interface{}) {
			p.collections[key] = append(items[:i:i], items[i+1:]...)
			c.Status(http.StatusNoContent)
		})
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": fmt.Sprintf("Method \"%s\" not allowed.", c.Request.Method)})
	}
}

func (p *Portal) list(c *gin.Context, key string) {
	p.mu.Lock()
	items := make([]map[string]interface{}, len(p.collections[key]))
	copy(items, p.collections[key])
	envelope := p.envelope
	p.mu.Unlock()

	switch envelope {
	case EnvelopeList:
		c.JSON(http.StatusOK, items)
	case EnvelopeData:
		c.JSON(http.StatusOK, gin.H{"success": true, "data": items})
	default:
		c.JSON(http.StatusOK, gin.H{"count": len(items), "next": nil, "previous": nil, "results": items})
	}
}

func (p *Portal) create(c *gin.Context, key string) {
	item, ok := p.bindItem(c)
	if !ok {
		return
	}
	p.mu.Lock()
	p.nextID++
	item["id"] = p.nextID
	p.collections[key] = append(p.collections[key], item)
	p.mu.Unlock()
	p.single(c, http.StatusCreated, item)
}

// withItem runs fn with the index of id under the lock, or answers 404.
func (p *Portal) withItem(c *gin.Context, key, id string, fn func(i int, items []map[string]interface{})) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.collections[key]
	for i, it := range items {
		if fmt.Sprint(it["id"]) == id {
			fn(i, items)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}

// single writes one item in the configured envelope. Callers may hold p.mu.
func (p *Portal) single(c *gin.Context, status int, item map[string]interface{}) {
	copied := make(map[string]interface{}, len(item))
	for k, v := range item {
		copied[k] = v
	}
	if p.envelope == EnvelopeData {
		c.JSON(status, gin.H{"success": true, "data": copied})
		return
	}
	c.JSON(status, copied)
}

// bindItem reads a JSON or multipart body. Uploaded files are stored by
// filename.
func (p *Portal) bindItem(c *gin.Context) (map[string]interface{}, bool) {
	item := map[string]interface{}{}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid multipart body"})
			return nil, false
		}
		keys := make([]string, 0, len(form.Value))
		for k := range form.Value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if len(form.Value[k]) > 0 {
				item[k] = form.Value[k][0]
			}
		}
		for k, files := range form.File {
			if len(files) > 0 {
				item[k] = files[0].Filename
			}
		}
		return item, true
	}
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid JSON body"})
		return nil, false
	}
	return item, true
}
