// Package collection describes forum tables the way batch helpers need to
// see them: a name, a unique sortable key and the fields that carry schema
// defaults.
package collection

import (
	"fmt"
	"sort"
)

const DefaultKey = "_id"

type Field struct {
	Name string
	// Default is the schema default, nil means the field has none
	Default            interface{}
	CanAutofillDefault bool
}

type Collection struct {
	Name   string
	Key    string
	fields map[string]Field
}

func New(name string, fields ...Field) *Collection {
	c := &Collection{Name: name, Key: DefaultKey, fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		c.fields[f.Name] = f
	}
	return c
}

// WithKey changes the cursor column, it has to be unique and sortable
func (c *Collection) WithKey(key string) *Collection {
	c.Key = key
	return c
}

func (c *Collection) Field(name string) (Field, bool) {
	f, ok := c.fields[name]
	return f, ok
}

func (c *Collection) Fields() []Field {
	result := make([]Field, 0, len(c.fields))
	for _, f := range c.fields {
		result = append(result, f)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result
}

func (c *Collection) String() string {
	return c.Name
}

// Document is one row keyed by column name
type Document map[string]interface{}

func (d Document) Get(column string) interface{} {
	return d[column]
}

func (d Document) String(column string) string {
	switch v := d[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Normalize turns driver byte slices into strings so documents look the
// same whichever driver produced them
func (d Document) Normalize() Document {
	for k, v := range d {
		if b, ok := v.([]byte); ok {
			d[k] = string(b)
		}
	}
	return d
}
