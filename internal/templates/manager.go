// Package templates renders printable pages (invoices) from html/template
// files, with a reload-on-every-request mode for development.
package templates

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"motoshop/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// InvoicePage is the page template used for printable work order invoices
const InvoicePage = "pages/invoice.html"

// Manager handles template loading and caching
type Manager struct {
	dir     string
	debug   bool
	loc     *time.Location
	cache   map[string]*template.Template
	mu      sync.RWMutex
	funcMap template.FuncMap
}

// NewManager creates a new template manager.
// In debug mode pages are re-parsed on every render, otherwise all pages are
// parsed once up front. Dates are printed in loc.
func NewManager(dir string, debug bool, loc *time.Location) (*Manager, error) {
	cleanDir := filepath.Clean(dir)
	if _, err := os.Stat(cleanDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("template directory does not exist: %s", cleanDir)
	}
	if loc == nil {
		loc = time.UTC
	}

	m := &Manager{
		dir:   cleanDir,
		debug: debug,
		loc:   loc,
		cache: make(map[string]*template.Template),
	}
	m.funcMap = template.FuncMap{
		"formatDate":         m.formatDate,
		"formatDateTime":     m.formatDateTime,
		"formatMoney":        FormatMoney,
		"statusLabel":        domain.WorkOrderStatusLabel,
		"paymentStatusLabel": domain.PaymentStatusLabel,
		"statusBadge":        statusBadge,
		"add":                add,
	}

	if !debug {
		if err := m.loadTemplates(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// loadTemplates parses every page under pages/ together with the layout
func (m *Manager) loadTemplates() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	layout, err := os.ReadFile(filepath.Join(m.dir, "layouts", "base.html"))
	if err != nil {
		return fmt.Errorf("failed to read layout: %w", err)
	}

	pagesDir := filepath.Join(m.dir, "pages")
	return filepath.Walk(pagesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".html" {
			return nil
		}

		cleanPath := filepath.Clean(path)
		if !isSubPath(m.dir, cleanPath) {
			return fmt.Errorf("invalid template path detected: %s", path)
		}
		relPath, err := filepath.Rel(m.dir, cleanPath)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(relPath)

		tmpl, err := m.parsePage(layout, cleanPath, name)
		if err != nil {
			return err
		}
		m.cache[name] = tmpl
		return nil
	})
}

// loadSingle re-parses one page (debug mode)
func (m *Manager) loadSingle(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pagePath := filepath.Clean(filepath.Join(m.dir, filepath.FromSlash(name)))
	if !isSubPath(m.dir, pagePath) {
		return fmt.Errorf("invalid template path detected: %s", name)
	}

	layout, err := os.ReadFile(filepath.Join(m.dir, "layouts", "base.html"))
	if err != nil {
		return fmt.Errorf("failed to read layout: %w", err)
	}

	tmpl, err := m.parsePage(layout, pagePath, name)
	if err != nil {
		return err
	}
	m.cache[name] = tmpl
	return nil
}

func (m *Manager) parsePage(layout []byte, path, name string) (*template.Template, error) {
	page, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}

	tmpl := template.New("base").Funcs(m.funcMap)
	if _, err := tmpl.Parse(string(layout)); err != nil {
		return nil, fmt.Errorf("failed to parse layout for %s: %w", name, err)
	}
	if _, err := tmpl.Parse(string(page)); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// Render executes the named page inside the base layout
func (m *Manager) Render(w io.Writer, name string, data interface{}) error {
	if m.debug {
		if err := m.loadSingle(name); err != nil {
			return fmt.Errorf("failed to reload templates: %w", err)
		}
	}

	m.mu.RLock()
	tmpl, ok := m.cache[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	return tmpl.ExecuteTemplate(w, "base", data)
}

// isSubPath checks if child is a subpath of parent
func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return !filepath.IsAbs(rel) && rel != ".." && len(rel) > 0 && rel[0] != '.'
}

// QRCodePNG encodes content as a 256px PNG QR code
func QRCodePNG(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}

// QRCodeDataURI returns the QR code for content as an inline image source
func QRCodeDataURI(content string) (template.URL, error) {
	png, err := QRCodePNG(content)
	if err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)), nil
}

// Template helper functions

var moneyPrinter = message.NewPrinter(language.Vietnamese)

// FormatMoney prints an amount in dong with Vietnamese digit grouping,
// e.g. 1.250.000 ₫. Amounts are rounded to whole dong.
func FormatMoney(amount decimal.Decimal) string {
	return moneyPrinter.Sprintf("%d ₫", amount.Round(0).IntPart())
}

func (m *Manager) formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(m.loc).Format("02/01/2006")
}

func (m *Manager) formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(m.loc).Format("02/01/2006 15:04")
}

func add(a, b int) int {
	return a + b
}

func statusBadge(status string) string {
	badges := map[string]string{
		domain.WorkOrderStatusReceived:   "secondary",
		domain.WorkOrderStatusInProgress: "warning",
		domain.WorkOrderStatusCompleted:  "primary",
		domain.WorkOrderStatusDelivered:  "success",
		domain.WorkOrderStatusCancelled:  "error",
		domain.PaymentStatusUnpaid:       "error",
		domain.PaymentStatusPartial:      "warning",
		domain.PaymentStatusPaid:         "success",
	}
	if badge, ok := badges[strings.ToLower(status)]; ok {
		return badge
	}
	return "secondary"
}

// Business is the shop header printed on invoices
type Business struct {
	Name    string
	Address string
	Phone   string
}

// Invoice is the data behind InvoicePage
type Invoice struct {
	Title       string
	Business    Business
	Order       *domain.WorkOrder
	Subtotal    decimal.Decimal
	TrackingURL string
	QRCode      template.URL
	PrintedAt   time.Time
}
