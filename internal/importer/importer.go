// Package importer pulls every discovered root server's catalog into
// the aggregator store: service bodies, their formats with per-language
// translations, meetings, and the NAWS recovery rows. Roots import
// sequentially, each inside its own transaction, so one broken root
// never taints another.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bmlt-enabled/tomato/internal/config"
	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/domain/rootservers"
	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
	"github.com/bmlt-enabled/tomato/internal/metrics"
	"github.com/bmlt-enabled/tomato/internal/sanitize"
	"github.com/bmlt-enabled/tomato/internal/storage"
	"github.com/bmlt-enabled/tomato/internal/telemetry"
	"github.com/bmlt-enabled/tomato/internal/upstream"
)

const tracerName = "github.com/bmlt-enabled/tomato/internal/importer"

// ConnectionResetter drops pooled database connections so the import
// loop can continue on a fresh connection after a database fault.
type ConnectionResetter interface {
	Reset()
}

// Importer runs full import passes over the discovered root servers.
type Importer struct {
	repo     storage.Repository
	client   *upstream.Client
	resetter ConnectionResetter
	cfg      config.ImportConfig
	logger   zerolog.Logger

	ignoredRoots  map[string]bool
	ignoredBodies map[string]map[int64]bool
}

// New builds an Importer. resetter may be nil when the caller has no
// pool to reset, as in tests against a fake store.
func New(repo storage.Repository, client *upstream.Client, resetter ConnectionResetter, cfg config.ImportConfig, logger zerolog.Logger) *Importer {
	ignoredRoots := make(map[string]bool, len(cfg.IgnoreRootServers))
	for _, rootURL := range cfg.IgnoreRootServers {
		ignoredRoots[normalizeRootURL(rootURL)] = true
	}
	ignoredBodies := make(map[string]map[int64]bool, len(cfg.IgnoreServiceBodies))
	for rootURL, ids := range cfg.IgnoreServiceBodies {
		set := make(map[int64]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		ignoredBodies[normalizeRootURL(rootURL)] = set
	}
	return &Importer{
		repo:          repo,
		client:        client,
		resetter:      resetter,
		cfg:           cfg,
		logger:        logger,
		ignoredRoots:  ignoredRoots,
		ignoredBodies: ignoredBodies,
	}
}

// Run performs one import pass: discover the root server list, prune
// roots that fell off it, then import every listed root. A failed
// discovery aborts the pass before any root is touched; later failures
// stay isolated to the root they happened on.
func (imp *Importer) Run(ctx context.Context) (err error) {
	runID := ulid.Make().String()
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "import.run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "import pass failed")
		}
		span.End()
	}()

	logger := imp.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	logger.Info().Str("list_url", imp.cfg.RootServerListURL).Msg("import: retrieving root servers")
	entries, err := imp.client.FetchDiscoveryList(ctx, imp.cfg.RootServerListURL)
	if err != nil {
		logger.Error().Err(err).Msg("import: error retrieving root server list")
		metrics.ImportRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch root server list: %w", err)
	}

	keep := make([]int64, 0, len(entries))
	for _, entry := range entries {
		keep = append(keep, int64(entry.ID))
	}
	deleted, err := imp.repo.RootServers().DeleteAbsent(ctx, keep)
	if err != nil {
		logger.Error().Err(err).Msg("import: error deleting old root servers")
		metrics.ImportRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("prune root servers: %w", err)
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Msg("import: deleted root servers no longer listed")
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			metrics.ImportRunsTotal.WithLabelValues("error").Inc()
			return err
		}
		imp.importRoot(ctx, logger, entry)
	}

	metrics.ImportRunsTotal.WithLabelValues("success").Inc()
	metrics.ImportRunDuration.Observe(time.Since(start).Seconds())
	logger.Info().
		Int("root_servers", len(entries)).
		Dur("duration_ms", time.Since(start)).
		Msg("import: done")
	return nil
}

// importRoot imports one root server. Every database write happens in
// one transaction; a failure rolls the root back to its previous state
// and the pass moves on.
func (imp *Importer) importRoot(ctx context.Context, logger zerolog.Logger, entry upstream.DiscoveryEntry) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "import.root",
		trace.WithAttributes(attribute.String("root_server", entry.RootURL)))
	defer span.End()

	logger = logger.With().Str("root_server", entry.RootURL).Logger()

	if imp.ignoredRoots[entry.RootURL] {
		logger.Info().Msg("import: root server ignored by configuration")
		metrics.RootServersImported.WithLabelValues("skipped").Inc()
		return
	}

	logger.Info().Msg("import: importing root server")
	info, err := imp.client.FetchServerInfo(ctx, entry.RootURL)
	if err != nil {
		logger.Error().Err(err).Msg("import: error fetching server info")
		metrics.RootServersImported.WithLabelValues("error").Inc()
		return
	}

	root, err := imp.repo.RootServers().Upsert(ctx, rootservers.UpsertParams{
		SourceID:   int64(entry.ID),
		Name:       entry.Name,
		URL:        entry.RootURL,
		ServerInfo: info.Raw,
	})
	if err != nil {
		imp.failRoot(logger, err, "import: error updating root server row")
		return
	}

	logger = logger.With().Int64("root_server_id", root.ID).Logger()
	start := time.Now()

	err = imp.repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if err := tx.Problems().Clear(ctx, root.ID); err != nil {
			return fmt.Errorf("clear import problems: %w", err)
		}
		logger.Info().Msg("import: importing service bodies")
		if err := imp.importServiceBodies(ctx, logger, tx, root); err != nil {
			return err
		}
		logger.Info().Msg("import: importing formats")
		if err := imp.importFormats(ctx, tx, root, info.Langs); err != nil {
			return err
		}
		logger.Info().Msg("import: importing meetings")
		if err := imp.importMeetings(ctx, logger, tx, root); err != nil {
			return err
		}
		logger.Info().Msg("import: updating statistics")
		if err := tx.ServiceBodies().RecountStats(ctx, root.ID); err != nil {
			return fmt.Errorf("recount service body stats: %w", err)
		}
		if err := tx.RootServers().RecountCounters(ctx, root.ID); err != nil {
			return fmt.Errorf("recount root server counters: %w", err)
		}
		return tx.RootServers().MarkImported(ctx, root.ID, time.Now().UTC())
	})
	if err != nil {
		imp.failRoot(logger, err, "import: error updating root server")
		return
	}

	metrics.RootServersImported.WithLabelValues("success").Inc()
	if refreshed, err := imp.repo.RootServers().GetByID(ctx, root.ID); err == nil {
		metrics.MeetingsTotal.WithLabelValues(refreshed.URL).Set(float64(refreshed.NumMeetings))
	}
	logger.Info().Dur("duration_ms", time.Since(start)).Msg("import: root server imported")
}

// failRoot logs a root-level failure. Database faults additionally drop
// the pooled connections, so the next root starts on a clean one.
func (imp *Importer) failRoot(logger zerolog.Logger, err error, msg string) {
	metrics.RootServersImported.WithLabelValues("error").Inc()
	if isDatabaseError(err) && imp.resetter != nil {
		logger.Error().Err(err).Msg(msg + "; resetting connection pool")
		imp.resetter.Reset()
		return
	}
	logger.Error().Err(err).Msg(msg)
}

func (imp *Importer) importServiceBodies(ctx context.Context, logger zerolog.Logger, tx storage.Repository, root *rootservers.RootServer) error {
	docs, err := imp.client.FetchServiceBodies(ctx, root.URL)
	if err != nil {
		return fmt.Errorf("fetch service bodies: %w", err)
	}

	ignored := imp.ignoredBodies[root.URL]

	type bodyDoc struct {
		sourceID int64
		parentID int64
		doc      upstream.ServiceBody
	}
	parsed := make([]bodyDoc, 0, len(docs))
	keep := make([]int64, 0, len(docs))
	ignoredCount := 0
	for _, doc := range docs {
		sourceID, err := strconv.ParseInt(strings.TrimSpace(doc.ID), 10, 64)
		if err != nil {
			if err := imp.recordProblem(ctx, tx, root.ID, "Malformed id", doc); err != nil {
				return err
			}
			continue
		}
		if ignored[sourceID] {
			ignoredCount++
			continue
		}
		parsed = append(parsed, bodyDoc{sourceID: sourceID, parentID: parseParentID(doc.ParentID), doc: doc})
		keep = append(keep, sourceID)
	}
	if ignoredCount > 0 {
		logger.Info().Int("ignored", ignoredCount).Msg("import: ignored service bodies")
	}

	if _, err := tx.ServiceBodies().DeleteAbsent(ctx, root.ID, keep); err != nil {
		return fmt.Errorf("delete absent service bodies: %w", err)
	}

	for _, body := range parsed {
		if _, err := tx.ServiceBodies().Upsert(ctx, servicebodies.UpsertParams{
			RootServerID: root.ID,
			SourceID:     body.sourceID,
			Name:         body.doc.Name,
			Type:         body.doc.Type,
			Description:  body.doc.Description,
			URL:          body.doc.URL,
			Helpline:     body.doc.Helpline,
			WorldID:      body.doc.WorldID,
		}); err != nil {
			return fmt.Errorf("upsert service body %d: %w", body.sourceID, err)
		}
	}

	parents := make(map[int64]int64)
	for _, body := range parsed {
		if body.parentID != 0 {
			parents[body.sourceID] = body.parentID
		}
	}
	if err := tx.ServiceBodies().SetParents(ctx, root.ID, parents); err != nil {
		return fmt.Errorf("wire service body parents: %w", err)
	}
	return nil
}

// importFormats merges one GetFormats response per declared language.
// The format row itself is language-independent; the strings land on
// its per-language translation.
func (imp *Importer) importFormats(ctx context.Context, tx storage.Repository, root *rootservers.RootServer, langs []string) error {
	hasEnglish := false
	for _, lang := range langs {
		if lang == "en" {
			hasEnglish = true
			break
		}
	}
	if !hasEnglish {
		langs = append([]string{"en"}, langs...)
	}

	seen := make(map[int64]bool)
	keep := make([]int64, 0, 64)
	for _, lang := range langs {
		docs, err := imp.client.FetchFormats(ctx, root.URL, lang)
		if err != nil {
			return fmt.Errorf("fetch formats (%s): %w", lang, err)
		}
		for _, doc := range docs {
			sourceID, err := strconv.ParseInt(strings.TrimSpace(doc.ID), 10, 64)
			if err != nil {
				if err := imp.recordProblem(ctx, tx, root.ID, "Malformed id", doc); err != nil {
					return err
				}
				continue
			}
			format, err := tx.Formats().Upsert(ctx, formats.UpsertParams{
				RootServerID: root.ID,
				SourceID:     sourceID,
				WorldID:      doc.WorldID,
				Type:         doc.Type,
			})
			if err != nil {
				return fmt.Errorf("upsert format %d: %w", sourceID, err)
			}
			language := doc.Language
			if language == "" {
				language = lang
			}
			if err := tx.Formats().UpsertTranslation(ctx, formats.TranslationParams{
				FormatID:    format.ID,
				Language:    language,
				KeyString:   doc.KeyString,
				Name:        doc.Name,
				Description: doc.Description,
			}); err != nil {
				return fmt.Errorf("upsert format translation %d/%s: %w", sourceID, language, err)
			}
			if !seen[sourceID] {
				seen[sourceID] = true
				keep = append(keep, sourceID)
			}
		}
	}

	if _, err := tx.Formats().DeleteAbsent(ctx, root.ID, keep); err != nil {
		return fmt.Errorf("delete absent formats: %w", err)
	}
	return nil
}

func (imp *Importer) importMeetings(ctx context.Context, logger zerolog.Logger, tx storage.Repository, root *rootservers.RootServer) error {
	raws, err := imp.client.FetchMeetings(ctx, root.URL)
	if err != nil {
		return fmt.Errorf("fetch meetings: %w", err)
	}

	ignored := imp.ignoredBodies[root.URL]

	// present holds every source id of the filtered primary list, parsed
	// leniently: a record that later fails validation still shields its
	// stored row from the orphan sweep and its id from the NAWS merge.
	present := make(map[int64]bool, len(raws))
	kept := make([]upstream.RawMeeting, 0, len(raws))
	ignoredCount := 0
	for _, raw := range raws {
		if len(ignored) > 0 {
			if sbID, err := strconv.ParseInt(strings.TrimSpace(raw["service_body_bigint"]), 10, 64); err == nil && ignored[sbID] {
				ignoredCount++
				continue
			}
		}
		if id, err := strconv.ParseInt(strings.TrimSpace(raw["id_bigint"]), 10, 64); err == nil {
			present[id] = true
		}
		kept = append(kept, raw)
	}
	if ignoredCount > 0 {
		logger.Info().Int("ignored", ignoredCount).Msg("import: ignored meetings of ignored service bodies")
	}

	records := make([]*MeetingRecord, 0, len(kept))
	for _, raw := range kept {
		rec, err := NormalizeMeeting(raw)
		if err != nil {
			if err := imp.noteRejected(ctx, tx, root.ID, err, map[string]string(raw)); err != nil {
				return err
			}
			continue
		}
		records = append(records, rec)
	}

	if imp.cfg.NAWSMerge {
		merged, err := imp.mergeNAWSMeetings(ctx, logger, tx, root, present)
		if err != nil {
			return err
		}
		records = append(records, merged...)
	}

	keep := make([]int64, 0, len(present))
	for id := range present {
		keep = append(keep, id)
	}
	if _, err := tx.Meetings().DeleteAbsent(ctx, root.ID, keep); err != nil {
		return fmt.Errorf("delete absent meetings: %w", err)
	}

	bodies, err := tx.ServiceBodies().ListByRootServer(ctx, root.ID)
	if err != nil {
		return fmt.Errorf("list service bodies: %w", err)
	}
	bodyIDBySourceID := make(map[int64]int64, len(bodies))
	for _, body := range bodies {
		bodyIDBySourceID[body.SourceID] = body.ID
	}
	formatList, err := tx.Formats().ListByRootServer(ctx, root.ID)
	if err != nil {
		return fmt.Errorf("list formats: %w", err)
	}
	formatIDBySourceID := make(map[int64]int64, len(formatList))
	for _, format := range formatList {
		formatIDBySourceID[format.SourceID] = format.ID
	}
	idsByKeyString, err := tx.Formats().IDsByKeyString(ctx, root.ID)
	if err != nil {
		return fmt.Errorf("list format key strings: %w", err)
	}

	for _, rec := range records {
		bodyID, ok := bodyIDBySourceID[rec.ServiceBodySourceID]
		if !ok {
			if err := imp.recordProblem(ctx, tx, root.ID, "Invalid service_body", rec.Raw); err != nil {
				return err
			}
			continue
		}
		meeting, err := tx.Meetings().Upsert(ctx, meetings.UpsertParams{
			RootServerID:  root.ID,
			ServiceBodyID: bodyID,
			SourceID:      rec.SourceID,
			Name:          rec.Name,
			Weekday:       rec.Weekday,
			VenueType:     rec.VenueType,
			StartTime:     rec.StartTime,
			Duration:      rec.Duration,
			Language:      rec.Language,
			Latitude:      rec.Latitude,
			Longitude:     rec.Longitude,
			Published:     rec.Published,
			Deleted:       rec.Deleted,
		})
		if err != nil {
			return fmt.Errorf("upsert meeting %d: %w", rec.SourceID, err)
		}
		if err := tx.Meetings().UpsertInfo(ctx, meeting.ID, rec.Info); err != nil {
			return fmt.Errorf("upsert meeting info %d: %w", rec.SourceID, err)
		}
		if err := tx.Meetings().ReplaceFormats(ctx, meeting.ID, resolveFormatIDs(rec, formatIDBySourceID, idsByKeyString)); err != nil {
			return fmt.Errorf("link meeting formats %d: %w", rec.SourceID, err)
		}
	}
	return nil
}

// mergeNAWSMeetings recovers unpublished and deleted meetings from the
// NAWS dumps of the shallowest world-committed service bodies. A row
// merges only when the primary list does not already carry its id, it
// is unpublished or deleted, and its committee resolves to a known
// body. Merged ids extend present so the orphan sweep keeps them.
func (imp *Importer) mergeNAWSMeetings(ctx context.Context, logger zerolog.Logger, tx storage.Repository, root *rootservers.RootServer, present map[int64]bool) ([]*MeetingRecord, error) {
	bodies, err := tx.ServiceBodies().ListByRootServer(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("list service bodies: %w", err)
	}
	bodyByWorldID := make(map[string]int64)
	for _, body := range bodies {
		if body.WorldID == "" {
			continue
		}
		if _, ok := bodyByWorldID[body.WorldID]; !ok {
			bodyByWorldID[body.WorldID] = body.SourceID
		}
	}
	keyStrings, err := tx.Formats().KeyStringsByWorldID(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("list format world ids: %w", err)
	}
	lookup := nawsLookup{bodySourceIDByWorldID: bodyByWorldID, keyStringsByWorldID: keyStrings}

	var merged []*MeetingRecord
	for _, body := range servicebodies.TopWithWorldIDs(bodies) {
		logger.Info().
			Str("service_body", body.Name).
			Str("world_id", body.WorldID).
			Msg("import: pulling NAWS dump")
		rows, err := imp.client.FetchNAWSDump(ctx, root.URL, body.SourceID)
		if err != nil {
			return nil, fmt.Errorf("fetch NAWS dump for %s: %w", body.WorldID, err)
		}
		for _, row := range rows {
			published := strings.TrimSpace(row["unpublished"]) != "1"
			deleted := strings.TrimSpace(row["Delete"]) == "D"
			if published && !deleted {
				continue
			}
			if _, ok := bodyByWorldID[row["AreaRegion"]]; !ok {
				continue
			}
			if id, err := strconv.ParseInt(strings.TrimSpace(row["bmlt_id"]), 10, 64); err == nil && present[id] {
				continue
			}
			rec, err := convertNAWSMeeting(row, lookup)
			if err != nil {
				logger.Warn().Err(err).Msg("import: error parsing NAWS dump meeting")
				if err := imp.noteRejected(ctx, tx, root.ID, err, row); err != nil {
					return nil, err
				}
				continue
			}
			merged = append(merged, rec)
			present[rec.SourceID] = true
		}
	}
	return merged, nil
}

// resolveFormatIDs maps a record's format references to stored format
// ids: source ids directly, key strings through any translation that
// carries them. Unknown references drop out.
func resolveFormatIDs(rec *MeetingRecord, bySourceID map[int64]int64, byKeyString map[string][]int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, sourceID := range rec.FormatSourceIDs {
		if id, ok := bySourceID[sourceID]; ok {
			add(id)
		}
	}
	for _, keyString := range rec.FormatKeyStrings {
		for _, id := range byKeyString[keyString] {
			add(id)
		}
	}
	return out
}

// noteRejected files an import problem for a rejected record, keeping
// the record attached when the error carries one.
func (imp *Importer) noteRejected(ctx context.Context, tx storage.Repository, rootID int64, err error, raw any) error {
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return imp.recordProblem(ctx, tx, rootID, recErr.Message, recErr.Raw)
	}
	return imp.recordProblem(ctx, tx, rootID, err.Error(), raw)
}

// recordProblem stores one rejected record for operator review. The
// message and the stored copy are HTML-stripped since both render in
// admin tooling.
func (imp *Importer) recordProblem(ctx context.Context, tx storage.Repository, rootID int64, message string, raw any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", raw))
	}
	problem := storage.ImportProblem{
		RootServerID: rootID,
		Message:      truncate(sanitize.Text(message), 255),
		Data:         sanitize.Text(string(data)),
	}
	if err := tx.Problems().Record(ctx, problem); err != nil {
		return fmt.Errorf("record import problem: %w", err)
	}
	metrics.ImportProblemsTotal.Inc()
	return nil
}

func parseParentID(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" || v == "0" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func normalizeRootURL(rootURL string) string {
	rootURL = strings.TrimSpace(rootURL)
	if rootURL != "" && !strings.HasSuffix(rootURL, "/") {
		rootURL += "/"
	}
	return rootURL
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// isDatabaseError reports whether err came from the database rather
// than an upstream fetch or a rejected record. Upstream transport
// failures arrive as *url.Error, so a bare net error points at the
// database connection.
func isDatabaseError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, pgx.ErrTxClosed) || errors.Is(err, pgx.ErrTxCommitRollback) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
