package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"invoicer/internal/database"
	"invoicer/internal/invoice"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

// CollectionName is the MongoDB collection holding invoices.
const CollectionName = "invoices"

// MongoRepository implements Repository on MongoDB.
type MongoRepository struct {
	db  database.Provider
	now func() time.Time
	log zerolog.Logger
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository creates a repository on the shared database handle.
func NewMongoRepository(db database.Provider) *MongoRepository {
	return &MongoRepository{
		db:  db,
		now: time.Now,
		log: logger.WithComponent("repository-mongo"),
	}
}

func (r *MongoRepository) collection(ctx context.Context) (*mongo.Collection, error) {
	db, err := r.db.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: database unavailable: %w", err)
	}
	return db.Collection(CollectionName), nil
}

// EnsureIndexes creates the unique fileId index and the search indexes.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}

	names, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fileId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("fileId_unique"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_desc"),
		},
		{
			Keys:    bson.D{{Key: "vendor.name", Value: 1}},
			Options: options.Index().SetName("vendor_name"),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: create indexes: %w", err)
	}

	r.log.Info().Strs("indexes", names).Msg("Ensured invoice indexes")
	return nil
}

// Create implements Repository.
func (r *MongoRepository) Create(ctx context.Context, in *models.Invoice) (*models.Invoice, error) {
	oid := bson.NewObjectID()
	rec, err := prepareCreate(in, oid.Hex(), r.now())
	if err != nil {
		return nil, err
	}

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := coll.InsertOne(ctx, toDocument(rec, oid)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, invoice.ErrConflict
		}
		return nil, fmt.Errorf("repository: insert invoice: %w", err)
	}

	r.log.Info().Str("id", rec.ID).Str("file_id", rec.FileID).Msg("Created invoice")
	return &rec, nil
}

// Update implements Repository. The stored document is replaced whole; a
// concurrent update of the same record may be overwritten.
func (r *MongoRepository) Update(ctx context.Context, id string, patch models.InvoicePatch) (*models.Invoice, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	oid, _ := bson.ObjectIDFromHex(id)

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := findOne(ctx, coll, oid)
	if err != nil {
		return nil, err
	}

	rec, err := prepareUpdate(*existing, patch, r.now())
	if err != nil {
		return nil, err
	}

	res, err := coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: oid}}, toDocument(rec, oid))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, invoice.ErrConflict
		}
		return nil, fmt.Errorf("repository: replace invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, invoice.ErrNotFound
	}

	r.log.Info().Str("id", id).Msg("Updated invoice")
	return &rec, nil
}

// Delete implements Repository.
func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	oid, _ := bson.ObjectIDFromHex(id)

	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}

	res, err := coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("repository: delete invoice: %w", err)
	}
	if res.DeletedCount == 0 {
		return invoice.ErrNotFound
	}

	r.log.Info().Str("id", id).Msg("Deleted invoice")
	return nil
}

// FindByID implements Repository.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	oid, _ := bson.ObjectIDFromHex(id)

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	return findOne(ctx, coll, oid)
}

func findOne(ctx context.Context, coll *mongo.Collection, oid bson.ObjectID) (*models.Invoice, error) {
	var doc invoiceDocument
	if err := coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, invoice.ErrNotFound
		}
		return nil, fmt.Errorf("repository: find invoice: %w", err)
	}
	inv := doc.toModel()
	return &inv, nil
}

// searchFacet is the single aggregation result holding page and count.
type searchFacet struct {
	Items []invoiceDocument `bson:"items"`
	Total []struct {
		Count int64 `bson:"count"`
	} `bson:"total"`
}

// Search implements Repository with one $facet aggregation so the page and
// the total are computed from the same predicate.
func (r *MongoRepository) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Aggregate(ctx, searchPipeline(params))
	if err != nil {
		return nil, fmt.Errorf("repository: search invoices: %w", err)
	}
	var facets []searchFacet
	if err := cursor.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("repository: decode search result: %w", err)
	}

	var (
		items []models.Invoice
		total int64
	)
	if len(facets) > 0 {
		for _, doc := range facets[0].Items {
			items = append(items, doc.toModel())
		}
		if len(facets[0].Total) > 0 {
			total = facets[0].Total[0].Count
		}
	}
	return newSearchResult(items, total, params), nil
}

// searchFilter matches the query as a literal, case-insensitive substring of
// vendor.name or invoice.number.
func searchFilter(query string) bson.D {
	if query == "" {
		return bson.D{}
	}
	re := bson.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "vendor.name", Value: re}},
		bson.D{{Key: "invoice.number", Value: re}},
	}}}
}

func searchPipeline(params SearchParams) mongo.Pipeline {
	dir := -1
	if params.SortOrder == SortAscending {
		dir = 1
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: searchFilter(params.Query)}},
		{{Key: "$facet", Value: bson.D{
			{Key: "items", Value: bson.A{
				bson.D{{Key: "$sort", Value: bson.D{{Key: params.SortBy, Value: dir}, {Key: "_id", Value: dir}}}},
				bson.D{{Key: "$skip", Value: params.skip()}},
				bson.D{{Key: "$limit", Value: int64(params.Limit)}},
			}},
			{Key: "total", Value: bson.A{
				bson.D{{Key: "$count", Value: "count"}},
			}},
		}}},
	}
}

// Document shapes stored in MongoDB.

type invoiceDocument struct {
	ID        bson.ObjectID       `bson:"_id"`
	FileID    string              `bson:"fileId"`
	FileName  string              `bson:"fileName"`
	Vendor    vendorDocument      `bson:"vendor"`
	Invoice   invoiceDataDocument `bson:"invoice"`
	CreatedAt time.Time           `bson:"createdAt"`
	UpdatedAt *time.Time          `bson:"updatedAt,omitempty"`
}

type vendorDocument struct {
	Name    string `bson:"name"`
	Address string `bson:"address,omitempty"`
	TaxID   string `bson:"taxId,omitempty"`
}

type invoiceDataDocument struct {
	Number     string             `bson:"number"`
	Date       string             `bson:"date"`
	Currency   string             `bson:"currency"`
	Subtotal   *float64           `bson:"subtotal,omitempty"`
	TaxPercent *float64           `bson:"taxPercent,omitempty"`
	Total      *float64           `bson:"total,omitempty"`
	PONumber   string             `bson:"poNumber,omitempty"`
	PODate     string             `bson:"poDate,omitempty"`
	LineItems  []lineItemDocument `bson:"lineItems"`
}

type lineItemDocument struct {
	Description string   `bson:"description"`
	UnitPrice   float64  `bson:"unitPrice"`
	Quantity    float64  `bson:"quantity"`
	Total       float64  `bson:"total"`
	Discount    *float64 `bson:"discount,omitempty"`
	VAT         *float64 `bson:"vat,omitempty"`
}

func toDocument(inv models.Invoice, oid bson.ObjectID) invoiceDocument {
	items := make([]lineItemDocument, 0, len(inv.Invoice.LineItems))
	for _, li := range inv.Invoice.LineItems {
		items = append(items, lineItemDocument(li))
	}
	return invoiceDocument{
		ID:       oid,
		FileID:   inv.FileID,
		FileName: inv.FileName,
		Vendor:   vendorDocument(inv.Vendor),
		Invoice: invoiceDataDocument{
			Number:     inv.Invoice.Number,
			Date:       inv.Invoice.Date,
			Currency:   inv.Invoice.Currency,
			Subtotal:   inv.Invoice.Subtotal,
			TaxPercent: inv.Invoice.TaxPercent,
			Total:      inv.Invoice.Total,
			PONumber:   inv.Invoice.PONumber,
			PODate:     inv.Invoice.PODate,
			LineItems:  items,
		},
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
}

func (d invoiceDocument) toModel() models.Invoice {
	items := make([]models.LineItem, 0, len(d.Invoice.LineItems))
	for _, li := range d.Invoice.LineItems {
		items = append(items, models.LineItem(li))
	}
	inv := models.Invoice{
		ID:       d.ID.Hex(),
		FileID:   d.FileID,
		FileName: d.FileName,
		Vendor:   models.Vendor(d.Vendor),
		Invoice: models.InvoiceData{
			Number:     d.Invoice.Number,
			Date:       d.Invoice.Date,
			Currency:   d.Invoice.Currency,
			Subtotal:   d.Invoice.Subtotal,
			TaxPercent: d.Invoice.TaxPercent,
			Total:      d.Invoice.Total,
			PONumber:   d.Invoice.PONumber,
			PODate:     d.Invoice.PODate,
			LineItems:  items,
		},
		CreatedAt: d.CreatedAt.UTC(),
	}
	if d.UpdatedAt != nil {
		t := d.UpdatedAt.UTC()
		inv.UpdatedAt = &t
	}
	return inv
}
