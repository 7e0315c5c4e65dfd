package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"toolshare-backend/internal/domain"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 16

func pathID(r *http.Request, name string) (int32, error) {
	n, err := strconv.ParseInt(mux.Vars(r)[name], 10, 32)
	if err != nil {
		return 0, domain.NewError(domain.KindInvalidInput, "invalid %s", name)
	}
	return int32(n), nil
}

func queryInt32(r *http.Request, name string) (int32, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, domain.NewError(domain.KindInvalidInput, "invalid %s", name)
	}
	return int32(n), nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.NewError(domain.KindInvalidInput, "%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewError(domain.KindInvalidInput, "malformed request body: %v", err)
	}
	return nil
}

// actor returns the authenticated user. Routes behind bearerAuth always have one.
func actor(r *http.Request) int32 {
	id, _ := ActorFromContext(r.Context())
	return id
}

func handoverType(r *http.Request) (domain.HandoverType, error) {
	return domain.ParseHandoverType(mux.Vars(r)["type"])
}

func page(r *http.Request) (int32, int32, error) {
	p, err := queryInt32(r, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt32(r, "page_size")
	if err != nil {
		return 0, 0, err
	}
	return p, size, nil
}

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int32 `json:"total"`
}

func newList[T any](items []T, total int32) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: total}
}

func duration(d time.Duration) string {
	return fmt.Sprintf("%ds", int64(d.Seconds()))
}
