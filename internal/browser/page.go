// Package browser describes the small set of page actions the reservation flow
// needs, so the flow can run against a real browser or an in-memory fake.
package browser

import (
	"context"
	"fmt"
)

type By int

const (
	ByXPath By = iota
	ByID
	ByCSS
)

func (b By) String() string {
	switch b {
	case ByXPath:
		return "xpath"
	case ByID:
		return "id"
	case ByCSS:
		return "css"
	default:
		return fmt.Sprintf("By(%d)", int(b))
	}
}

// Selector locates a single element. When several elements match, the first in
// document order is used.
type Selector struct {
	By    By
	Query string
}

func XPath(q string) Selector { return Selector{By: ByXPath, Query: q} }
func ID(id string) Selector   { return Selector{By: ByID, Query: id} }
func CSS(q string) Selector   { return Selector{By: ByCSS, Query: q} }

func (s Selector) String() string {
	return s.By.String() + "=" + s.Query
}

// Page is an exclusively owned browser tab.
//
// Lookups that cannot find their element return an error wrapping
// internaltypes.ErrElementNotFound. Visible is the exception: a missing element
// is simply not visible.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, sel Selector) error
	// Fill clears the element and types value into it.
	Fill(ctx context.Context, sel Selector, value string) error
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, sel Selector, name string) (string, bool, error)
	Visible(ctx context.Context, sel Selector) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
