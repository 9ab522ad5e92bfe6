package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"invoicer/internal/config"
	"invoicer/internal/invoice"
	"invoicer/internal/logger"
	"invoicer/internal/storage"
	"invoicer/pkg/models"
)

// MaxDocumentSizeBytes is the inline request limit of Document AI (20MB).
const MaxDocumentSizeBytes = 20 * 1024 * 1024

// DocumentAIConfig configures the Document AI invoice parser.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string // "us" or "eu"
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

// documentProcessor is the subset of the Document AI client in use.
type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIProvider implements Provider with Google's pretrained invoice
// parser. Entities are mapped into the model output shape and then run
// through the Normalizer like every other provider.
type DocumentAIProvider struct {
	client     documentProcessor
	storage    storage.Provider
	config     DocumentAIConfig
	normalizer *invoice.Normalizer
	log        zerolog.Logger
}

var _ Provider = (*DocumentAIProvider)(nil)

// DocumentAIConfigFrom reads the parser settings from the application config.
func DocumentAIConfigFrom(cfg *config.Config) DocumentAIConfig {
	return DocumentAIConfig{
		ProjectID:        cfg.GoogleCloudProject,
		Location:         cfg.GoogleCloudLocation,
		ProcessorID:      cfg.DocumentAIProcessorID,
		ProcessorVersion: cfg.DocumentAIProcessorVersion,
		Timeout:          cfg.AITimeout,
	}
}

// NewDocumentAIProvider creates a provider with a regional client.
func NewDocumentAIProvider(ctx context.Context, cfg DocumentAIConfig, store storage.Provider, opts ...option.ClientOption) (*DocumentAIProvider, error) {
	const op = "NewDocumentAIProvider"

	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, WrapExtractionError(op, ProviderDocumentAI, ErrProviderNotConfigured, "GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	clientOptions := append([]option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}, opts...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, WrapExtractionError(op, ProviderDocumentAI, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	return newDocumentAIProviderWithClient(client, store, cfg), nil
}

func newDocumentAIProviderWithClient(client documentProcessor, store storage.Provider, cfg DocumentAIConfig) *DocumentAIProvider {
	return &DocumentAIProvider{
		client:     client,
		storage:    store,
		config:     cfg,
		normalizer: invoice.NewNormalizer(),
		log:        logger.WithComponent("extraction-documentai"),
	}
}

// Name implements Provider.
func (p *DocumentAIProvider) Name() string { return ProviderDocumentAI }

// ExtractInvoiceData implements Provider.
func (p *DocumentAIProvider) ExtractInvoiceData(ctx context.Context, fileID string) (*models.ExtractedData, error) {
	const op = "ExtractInvoiceData"

	data, err := p.storage.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxDocumentSizeBytes {
		return nil, WrapExtractionError(op, ProviderDocumentAI, fmt.Errorf("document is %d bytes", len(data)), "document too large")
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	resp, err := p.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapExtractionError(op, ProviderDocumentAI, ErrEmptyResponse, "no document in response")
	}

	raw, err := json.Marshal(entitiesToRaw(resp.Document))
	if err != nil {
		return nil, WrapExtractionError(op, ProviderDocumentAI, err, "encode entities")
	}

	p.log.Info().
		Str("file_id", fileID).
		Int("entities", len(resp.Document.Entities)).
		Msg("Document AI extraction completed")

	result := p.normalizer.Normalize(string(raw))
	return &result, nil
}

func (p *DocumentAIProvider) processorName() string {
	if p.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			p.config.ProjectID, p.config.Location, p.config.ProcessorID, p.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// handleProcessingError classifies gRPC failures.
func (p *DocumentAIProvider) handleProcessingError(op string, err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapExtractionError(op, ProviderDocumentAI, fmt.Errorf("%w: %v", ErrProviderNotConfigured, err), "insufficient permissions for Document AI")
	case codes.NotFound:
		return WrapExtractionError(op, ProviderDocumentAI, fmt.Errorf("%w: %v", ErrProviderNotConfigured, err), fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case codes.ResourceExhausted:
		return WrapExtractionError(op, ProviderDocumentAI, fmt.Errorf("%w: %v", ErrModelCall, err), "Document AI quota exceeded")
	default:
		return WrapExtractionError(op, ProviderDocumentAI, fmt.Errorf("%w: %v", ErrModelCall, err), "")
	}
}

// Close closes the underlying client.
func (p *DocumentAIProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// entitiesToRaw maps parser entities onto the model output shape. Values are
// taken from the normalized value when Document AI supplies one.
func entitiesToRaw(doc *documentaipb.Document) map[string]interface{} {
	vendor := map[string]interface{}{}
	inv := map[string]interface{}{}
	items := []interface{}{}
	var net, tax *float64

	for _, entity := range doc.Entities {
		value := strings.TrimSpace(entity.MentionText)

		switch entity.Type {
		case "supplier_name", "vendor_name":
			vendor["name"] = value
		case "supplier_address":
			vendor["address"] = value
		case "supplier_tax_id", "supplier_registration":
			vendor["taxId"] = value
		case "invoice_id", "invoice_number":
			inv["number"] = value
		case "invoice_date":
			inv["date"] = entityDate(entity)
		case "currency":
			inv["currency"] = value
		case "net_amount", "subtotal_amount":
			net = entityMoney(entity)
			inv["subtotal"] = floatOrString(net, value)
		case "total_tax_amount", "vat_amount":
			tax = entityMoney(entity)
		case "total_amount", "gross_amount":
			inv["total"] = floatOrString(entityMoney(entity), value)
		case "purchase_order":
			inv["poNumber"] = value
		case "line_item":
			items = append(items, lineItemToRaw(entity))
		}
	}

	if net != nil && tax != nil && *net != 0 {
		inv["taxPercent"] = invoice.Round2(*tax / *net * 100)
	}
	inv["lineItems"] = items

	return map[string]interface{}{"vendor": vendor, "invoice": inv}
}

func lineItemToRaw(entity *documentaipb.Document_Entity) map[string]interface{} {
	item := map[string]interface{}{}
	if len(entity.Properties) == 0 {
		item["description"] = strings.TrimSpace(entity.MentionText)
		return item
	}
	for _, prop := range entity.Properties {
		value := strings.TrimSpace(prop.MentionText)
		switch strings.TrimPrefix(prop.Type, "line_item/") {
		case "description", "product_code":
			if _, ok := item["description"]; !ok {
				item["description"] = value
			}
		case "quantity":
			item["quantity"] = value
		case "unit_price":
			item["unitPrice"] = floatOrString(entityMoney(prop), value)
		case "amount":
			item["total"] = floatOrString(entityMoney(prop), value)
		}
	}
	return item
}

func entityDate(entity *documentaipb.Document_Entity) string {
	if nv := entity.NormalizedValue; nv != nil {
		if d := nv.GetDateValue(); d != nil && d.Year > 0 {
			return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
		}
	}
	return strings.TrimSpace(entity.MentionText)
}

// entityMoney returns the normalized money value, or nil so the Normalizer
// parses the mention text instead.
func entityMoney(entity *documentaipb.Document_Entity) *float64 {
	if nv := entity.NormalizedValue; nv != nil {
		if m := nv.GetMoneyValue(); m != nil {
			v := float64(m.Units) + float64(m.Nanos)/1e9
			return &v
		}
	}
	return nil
}

func floatOrString(v *float64, mention string) interface{} {
	if v == nil {
		return mention
	}
	return *v
}
