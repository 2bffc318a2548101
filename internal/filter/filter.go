// Package filter selects which source paths a plan includes. Rules are an
// ordered chain of include/exclude wildcard patterns; the first matching
// rule wins, and an empty chain includes everything.
package filter

import (
	"fmt"
	"path"
	"strings"
)

// Rule is one include or exclude pattern.
type Rule struct {
	pattern string
	include bool
}

// Chain holds an ordered list of rules.
type Chain struct {
	rules []Rule
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddInclude appends an include rule.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

func (c *Chain) add(pattern string, include bool) error {
	if _, err := path.Match(pattern, "probe"); err != nil {
		return fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	c.rules = append(c.rules, Rule{pattern: pattern, include: include})
	return nil
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool { return len(c.rules) == 0 }

// Match reports whether relPath should be included. Patterns containing a
// separator match against the whole relative path; bare patterns match the
// leaf name. Directory contents are matched by prefix.
func (c *Chain) Match(relPath string, isDir bool) bool {
	relPath = strings.ReplaceAll(relPath, "\\", "/")
	leaf := relPath
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		leaf = relPath[i+1:]
	}

	for _, rule := range c.rules {
		target := leaf
		if strings.ContainsRune(rule.pattern, '/') {
			target = relPath
		}
		ok, _ := path.Match(rule.pattern, target)
		if !ok && !isDir {
			// A pattern naming a directory also selects what's inside it.
			if strings.HasPrefix(relPath, rule.pattern+"/") {
				ok = true
			}
		}
		if ok {
			return rule.include
		}
	}
	return true
}
