// Package mongo mirrors announcements into a MongoDB collection for ad-hoc
// querying. The JSON document store stays authoritative; the mirror is
// rewritten per announcement whenever a version is recorded.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/config"
	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

// Mirror implements pipeline.Publisher.
type Mirror struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Mirror, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mirror{
		client:  client,
		coll:    client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection),
		timeout: cfg.MongoTimeout,
		logger:  logger,
	}, nil
}

// Name identifies the sink in logs and metrics.
func (m *Mirror) Name() string { return "mongo" }

// Publish upserts the current state of every announcement that gained a
// version.
func (m *Mirror) Publish(ctx context.Context, changes []domain.Change) error {
	docs := documentsFor(changes, domain.Now())
	if len(docs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var errs []error
	for _, doc := range docs {
		_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			errs = append(errs, fmt.Errorf("upsert %s: %w", doc.ID, err))
		}
	}
	m.logger.Debug("mirrored announcements", zap.Int("count", len(docs)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Close disconnects the client.
func (m *Mirror) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type announcementDoc struct {
	ID             string            `bson:"_id"`
	Title          string            `bson:"title"`
	PublishDate    string            `bson:"publish_date"`
	DetailURL      string            `bson:"detail_url"`
	Category       domain.Category   `bson:"category"`
	Keywords       []string          `bson:"keywords"`
	EventGroupID   string            `bson:"event_group_id"`
	VersionCount   int               `bson:"version_count"`
	VersionHistory []versionDoc      `bson:"version_history"`
	Latest         *extractedDataDoc `bson:"latest_extracted_data"`
	MirroredAt     time.Time         `bson:"mirrored_at"`
}

type versionDoc struct {
	ScrapedAt     time.Time         `bson:"scraped_at"`
	ContentHTML   string            `bson:"content_html"`
	ContentText   string            `bson:"content_text"`
	ContentHash   string            `bson:"content_hash"`
	ExtractedData *extractedDataDoc `bson:"extracted_data"`
}

type extractedDataDoc struct {
	ReportVersion           *string             `bson:"report_version"`
	EventType               *domain.EventType   `bson:"event_type"`
	Status                  *domain.Status      `bson:"status"`
	AffectedLines           []string            `bson:"affected_lines"`
	AffectedStations        []string            `bson:"affected_stations"`
	PredictedResumptionTime *time.Time          `bson:"predicted_resumption_time"`
	ActualResumptionTime    *time.Time          `bson:"actual_resumption_time"`
	ServiceType             *domain.ServiceType `bson:"service_type"`
	ServiceDetails          *string             `bson:"service_details"`
}

// documentsFor builds one document per announcement with a new version. An
// announcement changed twice in one cycle is written once.
func documentsFor(changes []domain.Change, now time.Time) []announcementDoc {
	seen := make(map[string]bool)
	var docs []announcementDoc
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.Outcome == domain.OutcomeUnchanged || c.Announcement == nil || seen[c.Announcement.ID] {
			continue
		}
		seen[c.Announcement.ID] = true
		docs = append(docs, toDocument(c.Announcement, now))
	}
	return docs
}

func toDocument(a *domain.Announcement, now time.Time) announcementDoc {
	records := a.History.All()
	versions := make([]versionDoc, len(records))
	for i, r := range records {
		versions[i] = versionDoc{
			ScrapedAt:     r.ScrapedAt,
			ContentHTML:   r.ContentHTML,
			ContentText:   r.ContentText,
			ContentHash:   r.ContentHash,
			ExtractedData: toExtractedDoc(r.ExtractedData),
		}
	}

	keywords := a.Classification.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	doc := announcementDoc{
		ID:             a.ID,
		Title:          a.Title,
		PublishDate:    a.PublishDate,
		DetailURL:      a.DetailURL,
		Category:       a.Classification.Category,
		Keywords:       keywords,
		EventGroupID:   a.Classification.EventGroupID,
		VersionCount:   len(versions),
		VersionHistory: versions,
		MirroredAt:     now,
	}
	if len(versions) > 0 {
		doc.Latest = versions[len(versions)-1].ExtractedData
	}
	return doc
}

func toExtractedDoc(d *domain.ExtractedData) *extractedDataDoc {
	if d == nil {
		return nil
	}
	return &extractedDataDoc{
		ReportVersion:           d.ReportVersion,
		EventType:               d.EventType,
		Status:                  d.Status,
		AffectedLines:           d.AffectedLines,
		AffectedStations:        d.AffectedStations,
		PredictedResumptionTime: d.PredictedResumptionTime,
		ActualResumptionTime:    d.ActualResumptionTime,
		ServiceType:             d.ServiceType,
		ServiceDetails:          d.ServiceDetails,
	}
}
