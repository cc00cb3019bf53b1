package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SessionCookie is the cookie name the fake backend issues at POST /jwt.
const SessionCookie = "token"

// FakeBackend is an in-process stand-in for the resident REST API. Privileged
// routes require the cookie issued by POST /jwt.
type FakeBackend struct {
	Server *httptest.Server

	mu            sync.Mutex
	roles         map[string]string
	users         map[string]map[string]any
	sessions      map[string]string // cookie value -> email
	agreements    []map[string]any
	announcements []map[string]any
	payments      map[string][]map[string]any
	apartments    []map[string]any
	coupons       []map[string]any
	statusFor     map[string]int // path -> forced status
	unauth401     int            // remaining privileged requests to reject with 401
	jwtDelay      time.Duration

	seq      atomic.Int64
	requests sync.Map // "METHOD /path" -> *atomic.Int64
	jwtBody  atomic.Value
}

// NewFakeBackend starts a fake backend and closes it at test cleanup.
func NewFakeBackend(t interface {
	TestingTB
	Cleanup(func())
}) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		roles:     map[string]string{},
		users:     map[string]map[string]any{},
		sessions:  map[string]string{},
		payments:  map[string][]map[string]any{},
		statusFor: map[string]int{},
		apartments: []map[string]any{
			{"_id": "a1", "blockName": "A", "floorNo": 3, "apartmentNo": "A-301", "rent": 1200, "available": true},
			{"_id": "a2", "blockName": "B", "floorNo": 1, "apartmentNo": "B-101", "rent": 900, "available": false},
		},
		coupons: []map[string]any{
			{"_id": "c1", "title": "Spring", "description": "Spring offer", "code": "SPRING10", "discount": 10, "validTill": "2099-04-30"},
		},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL.
func (f *FakeBackend) URL() string { return f.Server.URL }

// SetRole sets the role returned for email. An empty role removes the field.
func (f *FakeBackend) SetRole(email, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[strings.ToLower(email)] = role
}

// Role returns the stored role for email.
func (f *FakeBackend) Role(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[strings.ToLower(email)]
}

// AddUser registers a profile so GET /users/{email} succeeds.
func (f *FakeBackend) AddUser(email, name, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[strings.ToLower(email)] = map[string]any{"name": name, "email": email, "role": role}
	f.roles[strings.ToLower(email)] = role
}

// HasUser reports whether a profile exists for email.
func (f *FakeBackend) HasUser(email string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[strings.ToLower(email)]
	return ok
}

// AddAgreement adds a pending agreement and returns its id.
func (f *FakeBackend) AddAgreement(email, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("agr-%d", f.seq.Add(1))
	f.agreements = append(f.agreements, map[string]any{
		"_id": id, "userEmail": email, "userName": name, "status": "pending",
		"blockName": "A", "floorNo": 3, "apartmentNo": "A-301", "rent": 1200,
		"createdAt": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	return id
}

// AddPayment records a payment for email.
func (f *FakeBackend) AddPayment(email string, amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[strings.ToLower(email)] = append(f.payments[strings.ToLower(email)], map[string]any{
		"_id": fmt.Sprintf("pay-%d", f.seq.Add(1)), "email": email, "amount": amount, "month": "January",
		"transactionId": "txn_1", "status": "paid",
	})
}

// Agreements returns every stored agreement.
func (f *FakeBackend) Agreements() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.agreements...)
}

// Coupons returns the stored coupons.
func (f *FakeBackend) Coupons() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.coupons...)
}

// Payments returns the payments recorded for email.
func (f *FakeBackend) Payments(email string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.payments[strings.ToLower(email)]...)
}

// Announcements returns the posted announcements.
func (f *FakeBackend) Announcements() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.announcements...)
}

// FailPath forces status for every request to path.
func (f *FakeBackend) FailPath(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFor[path] = status
}

// Reject401 rejects the next n privileged requests with 401 even with a valid cookie.
func (f *FakeBackend) Reject401(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unauth401 = n
}

// DelayJWT makes POST /jwt wait d before answering.
func (f *FakeBackend) DelayJWT(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jwtDelay = d
}

// Count returns how many times "METHOD /path" was requested.
func (f *FakeBackend) Count(methodPath string) int64 {
	v, ok := f.requests.Load(methodPath)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// LastJWTBody returns the last decoded POST /jwt body.
func (f *FakeBackend) LastJWTBody() map[string]string {
	v, _ := f.jwtBody.Load().(map[string]string)
	return v
}

// ActiveSessions returns the number of issued, unrevoked cookies.
func (f *FakeBackend) ActiveSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *FakeBackend) count(r *http.Request) {
	key := r.Method + " " + r.URL.Path
	v, _ := f.requests.LoadOrStore(key, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	f.count(r)
	f.mu.Lock()
	forced := f.statusFor[r.URL.Path]
	f.mu.Unlock()
	if forced != 0 {
		writeJSON(w, forced, map[string]string{"message": http.StatusText(forced)})
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/jwt":
		f.handleJWT(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/logout":
		f.handleLogout(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/announcements":
		f.mu.Lock()
		list := append([]map[string]any{}, f.announcements...)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, list)
	case r.Method == http.MethodPost && r.URL.Path == "/users":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		email, _ := body["email"].(string)
		f.mu.Lock()
		f.users[strings.ToLower(email)] = body
		if _, ok := f.roles[strings.ToLower(email)]; !ok {
			role, _ := body["role"].(string)
			f.roles[strings.ToLower(email)] = role
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]bool{"inserted": true})
	default:
		email, ok := f.authorize(w, r)
		if !ok {
			return
		}
		f.privileged(w, r, email)
	}
}

func (f *FakeBackend) handleJWT(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
		return
	}
	f.jwtBody.Store(body)
	f.mu.Lock()
	delay := f.jwtDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	email := body["email"]
	if tok := body["token"]; tok != "" {
		email = tokenEmail(tok)
	}
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "missing credential"})
		return
	}
	val := fmt.Sprintf("sess-%d", f.seq.Add(1))
	f.mu.Lock()
	f.sessions[val] = strings.ToLower(email)
	f.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: val, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// tokenEmail reads the principal from a "mock-token-<email>" string or the
// email claim of an unverified JWT.
func tokenEmail(tok string) string {
	if rest, ok := strings.CutPrefix(tok, "mock-token-"); ok {
		return rest
	}
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return ""
	}
	return claims.Email
}

func (f *FakeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		f.mu.Lock()
		delete(f.sessions, c.Value)
		f.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (f *FakeBackend) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unauth401 > 0 {
		f.unauth401--
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized access"})
		return "", false
	}
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized access"})
		return "", false
	}
	email, ok := f.sessions[c.Value]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized access"})
		return "", false
	}
	return email, true
}

func (f *FakeBackend) privileged(w http.ResponseWriter, r *http.Request, _ string) {
	path := r.URL.Path
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/users/role/"):
		email := strings.ToLower(strings.TrimPrefix(path, "/users/role/"))
		role, ok := f.roles[email]
		if !ok || role == "" {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"role": role})
	case r.Method == http.MethodPatch && path == "/users/role":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.roles[strings.ToLower(body["email"])] = body["role"]
		writeJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/users/"):
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		email := strings.ToLower(strings.TrimPrefix(path, "/users/"))
		if _, ok := f.roles[email]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "user not found"})
			return
		}
		f.roles[email] = body["role"]
		writeJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
	case r.Method == http.MethodGet && path == "/users":
		list := make([]map[string]any, 0, len(f.users))
		for email, u := range f.users {
			cp := map[string]any{"name": u["name"], "email": email, "role": f.roles[email]}
			list = append(list, cp)
		}
		writeJSON(w, http.StatusOK, list)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/users/"):
		u, ok := f.users[strings.ToLower(strings.TrimPrefix(path, "/users/"))]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, u)
	case r.Method == http.MethodGet && path == "/agreements":
		status := r.URL.Query().Get("status")
		out := []map[string]any{}
		for _, a := range f.agreements {
			if status == "" || a["status"] == status {
				out = append(out, a)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case r.Method == http.MethodPost && path == "/agreements":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["_id"] = fmt.Sprintf("agr-%d", f.seq.Add(1))
		f.agreements = append(f.agreements, body)
		writeJSON(w, http.StatusCreated, map[string]bool{"inserted": true})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/agreements/"):
		email := strings.ToLower(strings.TrimPrefix(path, "/agreements/"))
		for i := len(f.agreements) - 1; i >= 0; i-- {
			if a := f.agreements[i]; strings.EqualFold(fmt.Sprint(a["userEmail"]), email) {
				writeJSON(w, http.StatusOK, a)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/agreements/") && strings.HasSuffix(path, "/status"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/agreements/"), "/status")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, a := range f.agreements {
			if a["_id"] == id {
				a["status"] = body["status"]
				writeJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "agreement not found"})
	case r.Method == http.MethodPost && path == "/announcements":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["_id"] = fmt.Sprintf("ann-%d", f.seq.Add(1))
		f.announcements = append(f.announcements, body)
		writeJSON(w, http.StatusCreated, map[string]bool{"inserted": true})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/payments/user/"):
		list := f.payments[strings.ToLower(strings.TrimPrefix(path, "/payments/user/"))]
		if list == nil {
			list = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, list)
	case r.Method == http.MethodPost && path == "/payments":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		email := strings.ToLower(fmt.Sprint(body["email"]))
		body["_id"] = fmt.Sprintf("pay-%d", f.seq.Add(1))
		f.payments[email] = append(f.payments[email], body)
		writeJSON(w, http.StatusCreated, map[string]bool{"inserted": true})
	case r.Method == http.MethodPost && path == "/create-payment-intent":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if amount, _ := body["amount"].(float64); amount <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid amount"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"clientSecret": fmt.Sprintf("pi_%d_secret", f.seq.Add(1))})
	case r.Method == http.MethodPost && path == "/validate-coupon":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, c := range f.coupons {
			if strings.EqualFold(fmt.Sprint(c["code"]), body["code"]) {
				writeJSON(w, http.StatusOK, map[string]any{"valid": true, "discountPercentage": c["discount"]})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
	case r.Method == http.MethodGet && path == "/coupons":
		writeJSON(w, http.StatusOK, f.coupons)
	case r.Method == http.MethodPost && path == "/coupons":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["_id"] = fmt.Sprintf("c-%d", f.seq.Add(1))
		f.coupons = append(f.coupons, body)
		writeJSON(w, http.StatusCreated, map[string]bool{"inserted": true})
	case (r.Method == http.MethodPatch || r.Method == http.MethodDelete) && strings.HasPrefix(path, "/coupons/"):
		id := strings.TrimPrefix(path, "/coupons/")
		for i, c := range f.coupons {
			if c["_id"] != id {
				continue
			}
			if r.Method == http.MethodDelete {
				f.coupons = append(f.coupons[:i:i], f.coupons[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]int{"deletedCount": 1})
				return
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			maps.Copy(c, body)
			c["_id"] = id
			writeJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "coupon not found"})
	case r.Method == http.MethodGet && path == "/apartments":
		writeJSON(w, http.StatusOK, f.apartments)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no route"})
	}
}
