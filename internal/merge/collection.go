package merge

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
)

// Collection is an input data collection in the alien "xml-single" format:
// one event per archive to merge.
type Collection struct {
	XMLName xml.Name      `xml:"alien"`
	Inner   collectionSet `xml:"collection"`
}

type collectionSet struct {
	Name   string  `xml:"name,attr"`
	Events []event `xml:"event"`
	Info   *info   `xml:"info,omitempty"`
}

type event struct {
	Name string `xml:"name,attr"`
	File file   `xml:"file"`
}

type file struct {
	Name string `xml:"name,attr"`
	LFN  string `xml:"lfn,attr"`
	TURL string `xml:"turl,attr"`
}

type info struct {
	Comment string `xml:"comment,attr"`
}

// CollectionName is Stage_<stage>.xml for intermediate stages and wn.xml for
// the final one.
func CollectionName(stage int) string {
	if stage > 0 {
		return fmt.Sprintf("Stage_%d.xml", stage)
	}
	return "wn.xml"
}

// NewCollection builds the collection of the given archives.
func NewCollection(stage int, archives []string) *Collection {
	c := &Collection{Inner: collectionSet{Name: CollectionName(stage)}}
	for i, lfn := range archives {
		c.Inner.Events = append(c.Inner.Events, event{
			Name: strconv.Itoa(i + 1),
			File: file{Name: path.Base(lfn), LFN: lfn, TURL: "alien://" + lfn},
		})
	}
	c.Inner.Info = &info{Comment: fmt.Sprintf("%d archives to merge", len(archives))}
	return c
}

// Name returns the collection file name.
func (c *Collection) Name() string { return c.Inner.Name }

// Len returns the number of archives.
func (c *Collection) Len() int { return len(c.Inner.Events) }

// Files returns the archive LFNs in order.
func (c *Collection) Files() []string {
	out := make([]string, len(c.Inner.Events))
	for i, e := range c.Inner.Events {
		out[i] = e.File.LFN
	}
	return out
}

// WriteTo renders the collection as XML.
func (c *Collection) WriteTo(w io.Writer) (int64, error) {
	data, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, xml.Header+string(data)+"\n")
	return int64(n), err
}

// ReadCollection parses a collection.
func ReadCollection(r io.Reader) (*Collection, error) {
	var c Collection
	if err := xml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("parse collection: %w", err)
	}
	return &c, nil
}
