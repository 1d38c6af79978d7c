package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/delta-incubator/riverbank/catalog"
	"github.com/delta-incubator/riverbank/delta"
	"github.com/delta-incubator/riverbank/signing"
)

// API serves the bearer-protected data plane: catalog listings and
// snapshot vending.
type API struct {
	store  catalog.Store
	opener delta.Opener
	signer signing.Signer
	logger *slog.Logger
}

// NewAPI creates the data-plane handler group.
func NewAPI(store catalog.Store, opener delta.Opener, signer signing.Signer, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		store:  store,
		opener: opener,
		signer: signer,
		logger: logger.With("component", "api"),
	}
}

// Routes returns the v1 router:
//
//	GET  /shares
//	GET  /shares/{share}/schemas
//	GET  /shares/{share}/schemas/{schema}/tables
//	GET  /shares/{share}/schemas/{schema}/tables/{table}
//	GET  /shares/{share}/schemas/{schema}/tables/{table}/metadata
//	POST /shares/{share}/schemas/{schema}/tables/{table}/query
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireBearer(a.store, a.logger))

	r.Get("/shares", a.listShares)
	r.Get("/shares/{share}/schemas", a.listSchemas)
	r.Get("/shares/{share}/schemas/{schema}/tables", a.listTables)
	r.Get("/shares/{share}/schemas/{schema}/tables/{table}", a.tableVersion)
	r.Get("/shares/{share}/schemas/{schema}/tables/{table}/metadata", a.tableMetadata)
	r.Post("/shares/{share}/schemas/{schema}/tables/{table}/query", a.tableQuery)

	return r
}

// scope derives the visibility scope from the authenticated token.
func scope(r *http.Request) catalog.Scope {
	tok, _ := TokenFromContext(r.Context())
	return catalog.TokenScope(tok.ID)
}

func (a *API) listShares(w http.ResponseWriter, r *http.Request) {
	shares, err := a.store.ListShares(r.Context(), scope(r))
	if err != nil {
		a.error(w, r, err)
		return
	}

	resp := newListResponse()
	for _, share := range shares {
		resp.Items = append(resp.Items, map[string]string{"name": share.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := a.store.ListSchemas(r.Context(), scope(r), chi.URLParam(r, "share"))
	if err != nil {
		a.error(w, r, err)
		return
	}

	resp := newListResponse()
	for _, schema := range schemas {
		resp.Items = append(resp.Items, map[string]string{
			"name":  schema.Name,
			"share": schema.ShareName,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := a.store.ListTables(r.Context(), scope(r),
		chi.URLParam(r, "share"), chi.URLParam(r, "schema"))
	if err != nil {
		a.error(w, r, err)
		return
	}

	resp := newListResponse()
	for _, table := range tables {
		resp.Items = append(resp.Items, map[string]string{
			"name":   table.Name,
			"share":  table.ShareName,
			"schema": table.SchemaName,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// openTable resolves the table within the request's scope and replays its
// snapshot. The two failure modes keep their distinct status codes: an
// unresolvable table is 404, a broken table is 500.
func (a *API) openTable(w http.ResponseWriter, r *http.Request) (*delta.Snapshot, catalog.Table, bool) {
	table, err := a.store.FindTable(r.Context(), scope(r),
		chi.URLParam(r, "share"), chi.URLParam(r, "schema"), chi.URLParam(r, "table"))
	if err != nil {
		a.error(w, r, err)
		return nil, catalog.Table{}, false
	}

	snap, err := a.opener.Open(r.Context(), table.Location)
	if err != nil {
		a.error(w, r, err)
		return nil, catalog.Table{}, false
	}
	return snap, table, true
}

func (a *API) tableVersion(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := a.openTable(w, r)
	if !ok {
		return
	}
	w.Header().Set(versionHeader, strconv.FormatInt(snap.Version, 10))
	w.WriteHeader(http.StatusOK)
}

func (a *API) tableMetadata(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := a.openTable(w, r)
	if !ok {
		return
	}

	body, err := assembleLines(snap, nil)
	if err != nil {
		a.error(w, r, err)
		return
	}
	writeLines(w, snap.Version, body)
}

func (a *API) tableQuery(w http.ResponseWriter, r *http.Request) {
	snap, table, ok := a.openTable(w, r)
	if !ok {
		return
	}

	// One signing round-trip per file, in manifest order. Any failure
	// aborts the response; there are no partial manifests.
	files := make([]fileLine, 0, len(snap.Files))
	for _, f := range snap.Files {
		location := signing.ResolveFileURI(table.Location, f.Path)
		url, err := a.signer.Sign(r.Context(), location)
		if err != nil {
			a.error(w, r, err)
			return
		}
		partitions := f.PartitionValues
		if partitions == nil {
			partitions = map[string]string{}
		}
		files = append(files, fileLine{File: fileBody{
			URL:             url,
			ID:              signing.FileID(f.Path),
			PartitionValues: partitions,
			Size:            f.Size,
			Stats:           f.Stats,
		}})
	}

	body, err := assembleLines(snap, files)
	if err != nil {
		a.error(w, r, err)
		return
	}
	writeLines(w, snap.Version, body)
}

// error maps failures to the wire: invisible or absent catalog entities are
// 404, everything upstream is 500.
func (a *API) error(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeLines(w http.ResponseWriter, version int64, body []byte) {
	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set(versionHeader, strconv.FormatInt(version, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
