package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"auto_blog_package_publisher/logger"
)

const PantryBaseURL = "https://getpantry.cloud/apiv1/pantry"

// Pantry is a minimal client for the getpantry.cloud basket API.
type Pantry struct {
	BaseURL  string
	PantryID string
	client   *http.Client
}

func NewPantry(pantryID string, client *http.Client) *Pantry {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pantry{BaseURL: PantryBaseURL, PantryID: pantryID, client: client}
}

func (p *Pantry) basketURL(name string) string {
	return fmt.Sprintf("%s/%s/basket/%s", p.BaseURL, url.PathEscape(p.PantryID), url.PathEscape(name))
}

// Put 写入（覆盖）一个 basket。
func (p *Pantry) Put(ctx context.Context, name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode basket: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.basketURL(name), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = p.do(req)
	return err
}

// Baskets lists the basket names of the pantry.
func (p *Pantry) Baskets(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", p.BaseURL, url.PathEscape(p.PantryID)), nil)
	if err != nil {
		return nil, err
	}
	raw, err := p.do(req)
	if err != nil {
		return nil, err
	}
	var details struct {
		Baskets []struct {
			Name string `json:"name"`
		} `json:"baskets"`
	}
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("decode pantry details: %w", err)
	}
	names := make([]string, 0, len(details.Baskets))
	for _, b := range details.Baskets {
		if b.Name != "" {
			names = append(names, b.Name)
		}
	}
	return names, nil
}

// Record fetches a basket written by Mirrored.Save.
func (p *Pantry) Record(ctx context.Context, name string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.basketURL(name), nil)
	if err != nil {
		return Record{}, err
	}
	raw, err := p.do(req)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode basket %s: %w", name, err)
	}
	return rec, nil
}

func (p *Pantry) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pantry %s: %w", req.Method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read pantry response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("pantry %s: %w", req.URL.Path, ErrNotFound)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("pantry %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, logger.Preview(string(raw), 200))
	}
	return raw, nil
}

// Mirrored saves to a primary store and copies each record to Pantry.
// Mirror failures are logged; the primary result stands.
type Mirrored struct {
	Store
	pantry *Pantry
	log    *logger.Logger
}

func NewMirrored(primary Store, pantry *Pantry, log *logger.Logger) *Mirrored {
	if log == nil {
		log = logger.Nop()
	}
	return &Mirrored{Store: primary, pantry: pantry, log: log}
}

func (m *Mirrored) Save(ctx context.Context, rec Record) (Record, error) {
	saved, err := m.Store.Save(ctx, rec)
	if err != nil {
		return saved, err
	}
	mirror := saved
	mirror.PantryBasket = saved.Name
	if err := m.pantry.Put(ctx, saved.Name, mirror); err != nil {
		m.log.Warn("pantry mirror failed", "basket", saved.Name, "error", err)
		return saved, nil
	}
	m.log.Info("pantry mirror saved", "basket", saved.Name)
	return mirror, nil
}

// Pantry exposes the mirror client for listing and reloading baskets.
func (m *Mirrored) Pantry() *Pantry {
	return m.pantry
}
