// Package fiscal talks to the fiscal authority sidecar that issues CAE codes.
package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Voucher is what the authority needs to authorize one receipt.
type Voucher struct {
	VoucherType int
	PointOfSale int
	CUIT        string
	Net         decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	SaleId      int
	IssuedAt    time.Time
}

// Authorization is an approved voucher.
type Authorization struct {
	CAE       string
	ExpiresAt time.Time
}

// Authority authorizes vouchers. Implementations return *RejectedError when the
// authority answered but refused the voucher.
type Authority interface {
	Authorize(ctx context.Context, voucher Voucher) (*Authorization, error)
}

// RejectedError is returned when the authority answered with a rejection.
type RejectedError struct {
	Observations []string
}

func (e *RejectedError) Error() string {
	if len(e.Observations) == 0 {
		return "voucher rejected by fiscal authority"
	}
	return "voucher rejected by fiscal authority: " + strings.Join(e.Observations, "; ")
}

// ErrNotConfigured is returned by the disabled authority.
var ErrNotConfigured = errors.New("fiscal sidecar is not configured")

type sidecarRequest struct {
	VoucherType int    `json:"tipo_cbte"`
	PointOfSale int    `json:"punto_vta"`
	CUIT        string `json:"cuit"`
	Net         string `json:"monto_neto"`
	Tax         string `json:"monto_iva"`
	Total       string `json:"monto_total"`
	SaleId      string `json:"venta_id"`
	IssuedAt    string `json:"fecha_cbte"`
}

type sidecarResponse struct {
	CAE          string `json:"cae"`
	CAEExpiresAt string `json:"cae_vencimiento"`
	Result       string `json:"resultado"` // A approved, R rejected
	Observations []struct {
		Code    int    `json:"codigo"`
		Message string `json:"mensaje"`
	} `json:"observaciones"`
}

// SidecarClient posts vouchers to the sidecar's /facturar endpoint.
type SidecarClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSidecarClient(baseURL string, timeout time.Duration) *SidecarClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SidecarClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *SidecarClient) Authorize(ctx context.Context, voucher Voucher) (*Authorization, error) {
	body, err := json.Marshal(sidecarRequest{
		VoucherType: voucher.VoucherType,
		PointOfSale: voucher.PointOfSale,
		CUIT:        voucher.CUIT,
		Net:         voucher.Net.StringFixed(2),
		Tax:         voucher.Tax.StringFixed(2),
		Total:       voucher.Total.StringFixed(2),
		SaleId:      fmt.Sprintf("%d", voucher.SaleId),
		IssuedAt:    voucher.IssuedAt.Format("20060102"),
	})
	if err != nil {
		return nil, fmt.Errorf("fiscal: marshal voucher: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/facturar", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fiscal: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fiscal: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fiscal: sidecar returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("fiscal: decode response: %w", err)
	}
	if result.Result != "A" || result.CAE == "" {
		rejected := &RejectedError{}
		for _, o := range result.Observations {
			rejected.Observations = append(rejected.Observations, fmt.Sprintf("%d %s", o.Code, o.Message))
		}
		return nil, rejected
	}
	expiresAt, err := time.Parse("20060102", result.CAEExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("fiscal: invalid cae_vencimiento %q: %w", result.CAEExpiresAt, err)
	}
	return &Authorization{CAE: result.CAE, ExpiresAt: expiresAt}, nil
}

// Disabled is used when no sidecar URL is configured; every call fails with ErrNotConfigured.
type Disabled struct{}

func (Disabled) Authorize(ctx context.Context, voucher Voucher) (*Authorization, error) {
	return nil, ErrNotConfigured
}
