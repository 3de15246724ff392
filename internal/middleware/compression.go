package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

// CompressionMiddleware gzips JSON responses. Analysis reports grow with the
// corpus, so they are the main beneficiary.
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	defaults := DefaultCompressionConfig()
	if config.MinSize <= 0 {
		config.MinSize = defaults.MinSize
	}
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = defaults.CompressionLevel
	}
	if len(config.ContentTypes) == 0 {
		config.ContentTypes = defaults.ContentTypes
	}

	cm := &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
	}
	cm.pool.New = func() interface{} {
		gz, err := gzip.NewWriterLevel(io.Discard, cm.config.CompressionLevel)
		if err != nil {
			return gzip.NewWriter(io.Discard)
		}
		return gz
	}
	return cm
}

// Handler returns a Gin middleware that buffers the handler's response and
// compresses it when the client accepts gzip and the body is large enough
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead || !clientAcceptsGzip(c.Request) {
			c.Next()
			return
		}

		original := c.Writer
		gzw := &gzipResponseWriter{ResponseWriter: original}
		c.Writer = gzw

		defer func() {
			c.Writer = original
			cm.finish(gzw)
		}()

		c.Next()
	}
}

func (cm *CompressionMiddleware) finish(gzw *gzipResponseWriter) {
	body := gzw.buf.Bytes()
	if len(body) == 0 {
		return
	}

	header := gzw.ResponseWriter.Header()
	if len(body) < cm.config.MinSize || header.Get("Content-Encoding") != "" || !cm.shouldCompress(header.Get("Content-Type")) {
		cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
		if _, err := gzw.ResponseWriter.Write(body); err != nil {
			slog.Debug("Response write failed", "error", err)
		}
		return
	}

	var compressed bytes.Buffer
	gz := cm.getGzipWriter(&compressed)
	_, err := gz.Write(body)
	if err == nil {
		err = gz.Close()
	}
	cm.pool.Put(gz)
	if err != nil {
		slog.Warn("Gzip compression failed, sending identity body", "error", err)
		cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
		gzw.ResponseWriter.Write(body)
		return
	}

	header.Set("Content-Encoding", "gzip")
	header.Add("Vary", "Accept-Encoding")
	header.Set("Content-Length", strconv.Itoa(compressed.Len()))

	cm.stats.RecordRequest(int64(len(body)), int64(compressed.Len()), true)
	if _, err := gzw.ResponseWriter.Write(compressed.Bytes()); err != nil {
		slog.Debug("Response write failed", "error", err)
	}
}

// clientAcceptsGzip checks if the client accepts gzip compression
func clientAcceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		params := strings.Split(part, ";")
		coding := strings.TrimSpace(params[0])
		if coding != "gzip" && coding != "*" {
			continue
		}
		for _, p := range params[1:] {
			p = strings.TrimSpace(p)
			if q, ok := strings.CutPrefix(p, "q="); ok {
				if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
					return false
				}
			}
		}
		return true
	}
	return false
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// getGzipWriter gets a gzip writer from the pool
func (cm *CompressionMiddleware) getGzipWriter(w io.Writer) *gzip.Writer {
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

// gzipResponseWriter holds the body back until the handler chain returns
type gzipResponseWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	return gzw.buf.Write(data)
}

func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.buf.WriteString(s)
}

// Written reports buffered output too, so error rendering does not write a
// second body
func (gzw *gzipResponseWriter) Written() bool {
	return gzw.buf.Len() > 0 || gzw.ResponseWriter.Written()
}

func (gzw *gzipResponseWriter) Size() int {
	return gzw.buf.Len()
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, sentSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalRequests, 1)
	atomic.AddInt64(&cs.TotalBytes, originalSize)
	if compressed {
		atomic.AddInt64(&cs.CompressedRequests, 1)
		atomic.AddInt64(&cs.CompressedBytes, sentSize)
	} else {
		atomic.AddInt64(&cs.CompressedBytes, originalSize)
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := atomic.LoadInt64(&cs.TotalBytes)
	sent := atomic.LoadInt64(&cs.CompressedBytes)

	ratio := float64(1)
	if total > 0 {
		ratio = float64(sent) / float64(total)
	}

	return map[string]interface{}{
		"total_requests":      atomic.LoadInt64(&cs.TotalRequests),
		"compressed_requests": atomic.LoadInt64(&cs.CompressedRequests),
		"total_bytes":         total,
		"sent_bytes":          sent,
		"compression_ratio":   ratio,
		"compression_savings": 1.0 - ratio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
