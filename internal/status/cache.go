package status

import (
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache memoizes summaries of terminal jobs, which never change.
// Non-terminal jobs are always summarized fresh.
type Cache struct {
	lru *expirable.LRU[string, Summary]
}

// NewCache creates a cache holding up to size summaries for ttl each
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1000
	}
	return &Cache{lru: expirable.NewLRU[string, Summary](size, nil, ttl)}
}

// Summary returns the summary for job, from cache when the job is terminal
func (c *Cache) Summary(job domain.Job) Summary {
	if c == nil || !job.Status.IsTerminal() {
		return Summarize(job)
	}
	if s, ok := c.lru.Get(job.ID); ok {
		return s.Clone()
	}
	s := Summarize(job)
	c.lru.Add(job.ID, s)
	return s.Clone()
}

// Len returns the number of cached summaries
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
