package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/delta-incubator/riverbank/catalog"
	"github.com/delta-incubator/riverbank/metrics"
)

// shareCredentialsVersion is the fixed version marker of the credentials
// payload handed to sharing clients.
const shareCredentialsVersion = 1

// Admin serves the basic-auth protected administrative surface: the catalog
// overview page, creation forms, and token distribution.
type Admin struct {
	store    catalog.Store
	tmpl     *TemplateCache
	creds    CredentialStore
	endpoint string
	logger   *slog.Logger
}

// NewAdmin creates the admin handler group. endpoint is the externally
// advertised data-plane base URL embedded in credential payloads.
func NewAdmin(store catalog.Store, tmpl *TemplateCache, creds CredentialStore, endpoint string, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		store:    store,
		tmpl:     tmpl,
		creds:    creds,
		endpoint: endpoint,
		logger:   logger.With("component", "admin"),
	}
}

// Routes returns the admin router:
//
//	GET  /                       catalog and token overview
//	POST /shares                 create share
//	POST /schemas                create schema
//	POST /tables                 create table
//	POST /tokens                 generate token with grants
//	GET  /tokens/share/{tokenID} share-credentials payload
func (a *Admin) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireBasic(a.creds, a.logger))

	r.Get("/", a.index)
	r.Post("/shares", a.createShare)
	r.Post("/schemas", a.createSchema)
	r.Post("/tables", a.createTable)
	r.Post("/tokens", a.createToken)
	r.Get("/tokens/share/{tokenID}", a.shareCredentials)

	return r
}

// indexData feeds the admin overview template.
type indexData struct {
	Shares  []catalog.Share
	Schemas []catalog.Schema
	Tables  []catalog.Table
	Tokens  []catalog.Token
}

func (a *Admin) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	shares, err := a.store.ListShares(ctx, catalog.AdminScope())
	if err != nil {
		a.error(w, r, err)
		return
	}
	schemas, err := a.store.ListAllSchemas(ctx)
	if err != nil {
		a.error(w, r, err)
		return
	}
	tables, err := a.store.ListAllTables(ctx)
	if err != nil {
		a.error(w, r, err)
		return
	}
	tokens, err := a.store.ListTokens(ctx)
	if err != nil {
		a.error(w, r, err)
		return
	}

	// Render into a buffer first so template failures produce a clean 500
	// instead of a half-written page.
	var buf bytes.Buffer
	err = a.tmpl.Render(&buf, "admin", indexData{
		Shares:  shares,
		Schemas: schemas,
		Tables:  tables,
		Tokens:  tokens,
	})
	if err != nil {
		a.error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (a *Admin) createShare(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("name")
	if name == "" {
		http.Error(w, "share name is required", http.StatusBadRequest)
		return
	}
	if _, err := a.store.CreateShare(r.Context(), name); err != nil {
		a.error(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (a *Admin) createSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("name")
	shareID, err := uuid.Parse(r.PostFormValue("share"))
	if name == "" || err != nil {
		http.Error(w, "schema name and share id are required", http.StatusBadRequest)
		return
	}
	if _, err := a.store.CreateSchema(r.Context(), name, shareID); err != nil {
		a.error(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (a *Admin) createTable(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("name")
	location := r.PostFormValue("location")
	schemaID, err := uuid.Parse(r.PostFormValue("schema"))
	if name == "" || location == "" || err != nil {
		http.Error(w, "table name, location, and schema id are required", http.StatusBadRequest)
		return
	}
	if _, err := a.store.CreateTable(r.Context(), name, location, schemaID); err != nil {
		a.error(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (a *Admin) createToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	name := r.PostForm.Get("name")
	if name == "" {
		http.Error(w, "token name is required", http.StatusBadRequest)
		return
	}

	var tableIDs []uuid.UUID
	for _, raw := range r.PostForm["tables"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "malformed table id "+raw, http.StatusBadRequest)
			return
		}
		tableIDs = append(tableIDs, id)
	}

	tok, err := a.store.GenerateToken(r.Context(), name, tableIDs)
	if err != nil {
		a.error(w, r, err)
		return
	}
	metrics.TokensIssued.Inc()
	a.logger.Info("token issued", "token", tok.Name, "grants", len(tableIDs), "expires_at", tok.ExpiresAt)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// shareCredentials returns the one-time distribution payload for a token.
// The body carries the raw bearer secret; treat it as sensitive.
func (a *Admin) shareCredentials(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		http.Error(w, "malformed token id", http.StatusBadRequest)
		return
	}
	tok, err := a.store.TokenByID(r.Context(), id)
	if err != nil {
		a.error(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"shareCredentialsVersion": shareCredentialsVersion,
		"bearerToken":             tok.Secret,
		"endpoint":                a.endpoint,
	})
}

func (a *Admin) error(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	a.logger.Error("admin request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
