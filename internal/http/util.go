package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// readBodyJSON 空 body 返回 (false, nil)
func readBodyJSON(r *http.Request, maxBytes int64, out any) (bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return false, err
	}
	if len(body) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(body, out)
}

// tenantIDFromReq 优先 query 参数 tenant_id，其次 X-Tenant-Id 头；都没有时返回空（使用服务默认租户）
func tenantIDFromReq(r *http.Request) string {
	if tid := r.URL.Query().Get("tenant_id"); tid != "" && tid != "null" {
		return tid
	}
	if tid := r.Header.Get("X-Tenant-Id"); tid != "" && tid != "null" {
		return tid
	}
	return ""
}
