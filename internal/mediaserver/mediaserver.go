// Package mediaserver is a thin HTTP client over the downstream media
// server's REST surface, grounded on the reference emby client and on
// CineVault's metadata.CacheClient for request/retry shape.
package mediaserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrItemNotIndexed is returned when the indexing-wait protocol exhausts its
// backoff schedule and the filename fallback also misses.
var ErrItemNotIndexed = errors.New("mediaserver: item not indexed")

// indexingWaitSchedule is the exponential backoff between find-by-path
// retries after a rescan is triggered: 2,4,8,16,32,64s (~126s total).
var indexingWaitSchedule = []time.Duration{
	2 * time.Second, 4 * time.Second, 8 * time.Second,
	16 * time.Second, 32 * time.Second, 64 * time.Second,
}

// SleepFunc is overridable in tests to avoid real waits.
var SleepFunc = time.Sleep

type Client struct {
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
}

func New(baseURL, apiKey, userID string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userID:     userID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Item is the subset of the server's item record the pipeline reads and
// writes.
type Item struct {
	ID                           string       `json:"Id"`
	Path                         string       `json:"Path"`
	Name                         string       `json:"Name"`
	SortName                     string       `json:"SortName"`
	ForcedSortName               string       `json:"ForcedSortName"`
	OriginalTitle                string       `json:"OriginalTitle,omitempty"`
	Overview                     string       `json:"Overview,omitempty"`
	ProductionYear               int          `json:"ProductionYear,omitempty"`
	PremiereDate                 string       `json:"PremiereDate,omitempty"`
	People                       []Person     `json:"People,omitempty"`
	GenreItems                   []NamedItem  `json:"GenreItems,omitempty"`
	Studios                      []NamedItem  `json:"Studios,omitempty"`
	PreferredMetadataLanguage    string       `json:"PreferredMetadataLanguage,omitempty"`
	PreferredMetadataCountryCode string       `json:"PreferredMetadataCountryCode,omitempty"`
	LockData                     bool         `json:"LockData"`
}

type Person struct {
	Name string `json:"Name"`
	Type string `json:"Type"`
}

type NamedItem struct {
	Name string `json:"Name"`
}

// MetadataFields carries the catalog-derived values the writer maps onto an
// Item. Name/SortName/ForcedSortName are deliberately NOT here: the writer
// always derives those from the on-disk basename.
type MetadataFields struct {
	OriginalTitle string
	Overview      string
	ReleaseDate   string
	Actress       []string
	Genre         []string
	Label         string
}

type itemsEnvelope struct {
	Items []Item `json:"Items"`
}

// TriggerScan fires a recursive refresh on parentID and does not wait for
// it to complete.
func (c *Client) TriggerScan(parentID string) error {
	u := fmt.Sprintf("%s/Items/%s/Refresh?Recursive=true", c.baseURL, parentID)
	req, err := http.NewRequest(http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("build scan request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trigger scan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("trigger scan: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// GetItem fetches full item details by id.
func (c *Client) GetItem(itemID string) (*Item, error) {
	u := fmt.Sprintf("%s/Users/%s/Items/%s", c.baseURL, c.userID, itemID)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build get-item request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get item: unexpected status %d", resp.StatusCode)
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &item, nil
}

// FindByPath queries all items and filters client-side for an exact Path
// match, returning nil if none matches.
func (c *Client) FindByPath(path string) (*Item, error) {
	items, err := c.listItems()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Path == path {
			return &items[i], nil
		}
	}
	return nil, nil
}

// FindByFilename is the fallback lookup: it matches on basename alone.
func (c *Client) FindByFilename(filename string) (*Item, error) {
	items, err := c.listItems()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if filepath.Base(items[i].Path) == filename {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (c *Client) listItems() ([]Item, error) {
	u := fmt.Sprintf("%s/Items?Recursive=true&Fields=Path", c.baseURL)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build list-items request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list items: unexpected status %d", resp.StatusCode)
	}

	var env itemsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return env.Items, nil
}

// WaitForIndexing triggers a rescan of parentID, then polls FindByPath on
// the exponential backoff schedule. If the schedule is exhausted it falls
// back to FindByFilename, which matches the basename against every item the
// server lists; the fallback is not limited to the actress directory. If
// that also misses it returns ErrItemNotIndexed.
func (c *Client) WaitForIndexing(parentID, path string) (*Item, error) {
	if err := c.TriggerScan(parentID); err != nil {
		return nil, err
	}

	for _, wait := range indexingWaitSchedule {
		SleepFunc(wait)
		item, err := c.FindByPath(path)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}

	item, err := c.FindByFilename(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if item != nil {
		return item, nil
	}
	return nil, ErrItemNotIndexed
}

// ApplyMetadata mutates item in place per the field-mapping contract:
// Name/SortName/ForcedSortName come from basename, never from the catalog.
func ApplyMetadata(item *Item, basename string, fields MetadataFields) {
	name := strings.TrimSuffix(basename, filepath.Ext(basename))
	item.Name = name
	item.SortName = name
	item.ForcedSortName = name

	item.OriginalTitle = fields.OriginalTitle
	item.Overview = fields.Overview
	item.PremiereDate = fields.ReleaseDate
	if year := parseYear(fields.ReleaseDate); year > 0 {
		item.ProductionYear = year
	}

	item.People = nil
	for _, a := range fields.Actress {
		item.People = append(item.People, Person{Name: a, Type: "Actor"})
	}

	item.GenreItems = nil
	for _, g := range fields.Genre {
		item.GenreItems = append(item.GenreItems, NamedItem{Name: g})
	}

	item.Studios = nil
	if fields.Label != "" {
		item.Studios = append(item.Studios, NamedItem{Name: fields.Label})
	}

	item.PreferredMetadataLanguage = "en"
	item.PreferredMetadataCountryCode = "JP"
	item.LockData = true
}

func parseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// PostItem writes the full, mutated item record back to the server.
func (c *Client) PostItem(item *Item) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	u := fmt.Sprintf("%s/Items/%s", c.baseURL, item.ID)
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build post-item request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post item: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post item: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// DeleteImage removes an image slot, treating 404 as success since the
// slot being already-empty is the common case before a first upload.
func (c *Client) DeleteImage(itemID, imageType string, index int) error {
	u := fmt.Sprintf("%s/Items/%s/Images/%s/%d", c.baseURL, itemID, imageType, index)
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("build delete-image request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete image: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// UploadImage posts raw (non-base64) image bytes to the given slot.
func (c *Client) UploadImage(itemID, imageType string, data []byte) error {
	u := fmt.Sprintf("%s/Items/%s/Images/%s?api_key=%s", c.baseURL, itemID, imageType, url.QueryEscape(c.apiKey))
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload-image request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload image: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// DownloadImage fetches image bytes from a catalog-supplied URL, accepting
// a 404 as success when the upstream proxy emits image bytes under that
// status — a known quirk of the source.
func (c *Client) DownloadImage(imageURL string) ([]byte, error) {
	resp, err := c.httpClient.Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(body) == 0 || !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("download image: invalid body (content-type %q, %d bytes)", contentType, len(body))
	}
	return body, nil
}

// WideVariantURL derives the backdrop/banner variant of an image URL by
// setting w=800 and stripping the "horizontal" query flag.
func WideVariantURL(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	q := u.Query()
	q.Set("w", "800")
	q.Del("horizontal")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// backdropDeleteIndices are the Backdrop slots cleared before upload, per
// the multi-backdrop convention of the server.
var backdropDeleteIndices = []int{0, 1, 2, 3, 4}

// UploadImages runs the full image flow for an item: picks the best source
// URL from the catalog fields, downloads it, derives the wide variant, and
// uploads Primary/Backdrop/Banner in order. It stops at the first failure
// and returns that error, leaving the later slots untouched; the caller logs
// it and queues a background retry, and never fails the item over it.
func (c *Client) UploadImages(itemID, imageCropped, rawImageURL string) error {
	source := imageCropped
	if source == "" {
		source = rawImageURL
	}
	if source == "" {
		return nil
	}

	primary, err := c.DownloadImage(source)
	if err != nil {
		return fmt.Errorf("download primary image: %w", err)
	}

	wideURL, err := WideVariantURL(source)
	if err != nil {
		return fmt.Errorf("derive wide variant: %w", err)
	}
	wide, err := c.DownloadImage(wideURL)
	if err != nil {
		return fmt.Errorf("download wide image: %w", err)
	}

	if err := c.DeleteImage(itemID, "Primary", 0); err != nil {
		return fmt.Errorf("delete primary slot: %w", err)
	}
	if err := c.UploadImage(itemID, "Primary", primary); err != nil {
		return fmt.Errorf("upload primary: %w", err)
	}

	for _, idx := range backdropDeleteIndices {
		if err := c.DeleteImage(itemID, "Backdrop", idx); err != nil {
			return fmt.Errorf("delete backdrop slot %d: %w", idx, err)
		}
	}
	if err := c.UploadImage(itemID, "Backdrop", wide); err != nil {
		return fmt.Errorf("upload backdrop: %w", err)
	}

	if err := c.DeleteImage(itemID, "Banner", 0); err != nil {
		return fmt.Errorf("delete banner slot: %w", err)
	}
	if err := c.UploadImage(itemID, "Banner", wide); err != nil {
		return fmt.Errorf("upload banner: %w", err)
	}

	return nil
}

// authorize sets the X-Emby-Token auth header and a fresh X-Request-Id
// correlation header. The id is sent to the server only; it does not appear
// in this client's errors or log lines.
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())
}
