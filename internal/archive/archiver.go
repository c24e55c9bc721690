// Package archive implements the Trade Archiver: a periodic cycle that
// moves old trade rows out of Postgres into gzipped NDJSON batches,
// grouped by UTC day, optionally uploaded to S3. The cycle is cursor
// driven and falls back to size-based local file rotation whenever
// S3Bucket is left unset.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoagg/fireagg/internal/storage"
)

const tradesTable = "symbol_trades_stream"

// batchLimit caps how many rows a single archive cycle reads, to keep one
// pass's memory and S3 object size bounded.
const batchLimit = 50_000

// Archiver periodically moves trades older than MaxAge from Postgres into
// gzipped NDJSON files, and uploads them to S3 if Bucket is set.
type Archiver struct {
	pool     *pgxpool.Pool
	s3Client *s3.Client

	Dir      string
	Bucket   string
	MaxBytes int64
	Interval time.Duration
	MaxAge   time.Duration
}

// New constructs an Archiver. s3Client may be nil, in which case batches
// are kept local only regardless of Bucket.
func New(pool *pgxpool.Pool, s3Client *s3.Client, dir, bucket string, maxGB, intervalHours, afterHours int) *Archiver {
	return &Archiver{
		pool:     pool,
		s3Client: s3Client,
		Dir:      dir,
		Bucket:   bucket,
		MaxBytes: int64(maxGB) * 1 << 30,
		Interval: time.Duration(intervalHours) * time.Hour,
		MaxAge:   time.Duration(afterHours) * time.Hour,
	}
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	log.Printf("archiver: dir=%s bucket=%q max=%dGB interval=%v age=%v",
		a.Dir, a.Bucket, a.MaxBytes>>30, a.Interval, a.MaxAge)

	a.cycle(ctx)

	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	cursor, err := storage.ArchiveCursor(ctx, a.pool, tradesTable)
	if err != nil {
		log.Printf("archiver: load cursor: %v", err)
		return
	}

	rows, lastTs, err := storage.SelectTradesSince(ctx, a.pool, cursor, a.MaxAge, batchLimit)
	if err != nil {
		log.Printf("archiver: select trades: %v", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	for day, batch := range groupByDay(rows) {
		if err := a.writeBatch(ctx, day, batch); err != nil {
			log.Printf("archiver: write batch %s: %v", day, err)
			return
		}
		log.Printf("archiver: archived %d trades for %s", len(batch), day)
	}

	if err := storage.DeleteTradesInRange(ctx, a.pool, cursor, lastTs); err != nil {
		log.Printf("archiver: delete archived range: %v", err)
		return
	}

	if err := storage.SetArchiveCursor(ctx, a.pool, tradesTable, lastTs); err != nil {
		log.Printf("archiver: save cursor: %v", err)
		return
	}

	a.rotate()
}

func groupByDay(rows []storage.ArchivableTradeRow) map[string][]storage.ArchivableTradeRow {
	batches := make(map[string][]storage.ArchivableTradeRow)
	for _, r := range rows {
		day := r.Ts.UTC().Format("2006/01/02")
		batches[day] = append(batches[day], r)
	}
	return batches
}

// writeBatch gzip-NDJSON-encodes trades and either uploads them to
// a.Bucket (if both Bucket and s3Client are set) or writes them under
// a.Dir/trades/YYYY/MM/DD.jsonl.gz.
func (a *Archiver) writeBatch(ctx context.Context, day string, trades []storage.ArchivableTradeRow) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	key := filepath.Join("trades", day+".jsonl.gz")

	if a.Bucket != "" && a.s3Client != nil {
		_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.Bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(buf.Bytes()),
		})
		if err != nil {
			return fmt.Errorf("s3 put %s: %w", key, err)
		}
		return nil
	}

	path := filepath.Join(a.Dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// rotate deletes the oldest local archive files until total size is under
// MaxBytes. A no-op for S3-backed archives: S3 lifecycle rules own
// retention there.
func (a *Archiver) rotate() {
	if a.Bucket != "" && a.s3Client != nil {
		return
	}

	root := filepath.Join(a.Dir, "trades")

	type entry struct {
		path string
		size int64
	}

	var files []entry
	var total int64

	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.MaxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	for _, f := range files {
		if total <= a.MaxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("archiver: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("archiver: rotated out %s (%d bytes)", f.path, f.size)
	}
}
