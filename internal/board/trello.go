package board

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/models"
)

// DefaultTrelloBaseURL is the Trello REST API root.
const DefaultTrelloBaseURL = "https://api.trello.com"

// DefaultHTTPTimeout bounds a single Trello request.
const DefaultHTTPTimeout = 30 * time.Second

// TrelloOption configures a TrelloClient.
type TrelloOption func(*TrelloClient)

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(base string) TrelloOption {
	return func(c *TrelloClient) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) TrelloOption {
	return func(c *TrelloClient) { c.http = hc }
}

// TrelloClient implements Board against the Trello REST API.
type TrelloClient struct {
	key     string
	token   string
	boardID string
	cfg     *config.Config
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	fields map[string]trelloFieldDef // custom field id -> definition
}

// NewTrelloClient creates a client for one board.
func NewTrelloClient(key, token, boardID string, cfg *config.Config, opts ...TrelloOption) *TrelloClient {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &TrelloClient{
		key:     key,
		token:   token,
		boardID: boardID,
		cfg:     cfg,
		baseURL: DefaultTrelloBaseURL,
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type trelloList struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

type trelloMember struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

type trelloFieldValue struct {
	Text    string `json:"text,omitempty"`
	Number  string `json:"number,omitempty"`
	Date    string `json:"date,omitempty"`
	Checked string `json:"checked,omitempty"`
}

type trelloFieldItem struct {
	IDCustomField string            `json:"idCustomField"`
	IDValue       string            `json:"idValue,omitempty"`
	Value         *trelloFieldValue `json:"value,omitempty"`
}

type trelloCard struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	URL              string            `json:"url"`
	ShortURL         string            `json:"shortUrl"`
	Due              *string           `json:"due"`
	IDList           string            `json:"idList"`
	Labels           []models.Label    `json:"labels"`
	Members          []trelloMember    `json:"members"`
	CustomFieldItems []trelloFieldItem `json:"customFieldItems"`
}

type trelloFieldOption struct {
	ID    string           `json:"id"`
	Value trelloFieldValue `json:"value"`
}

type trelloFieldDef struct {
	ID      string              `json:"id"`
	Name    string              `json:"name"`
	Type    string              `json:"type"`
	Options []trelloFieldOption `json:"options,omitempty"`
}

// GetLists returns the open lists of the board.
func (c *TrelloClient) GetLists(ctx context.Context) ([]models.BoardList, error) {
	var raw []trelloList
	if err := c.get(ctx, "/1/boards/"+c.boardID+"/lists", url.Values{"filter": {"open"}}, &raw); err != nil {
		return nil, err
	}
	lists := make([]models.BoardList, 0, len(raw))
	for _, l := range raw {
		if l.Closed {
			continue
		}
		lists = append(lists, models.BoardList{ID: l.ID, Name: l.Name, Closed: l.Closed})
	}
	return lists, nil
}

// GetCards returns the cards in listIDs. Cards whose due date cannot be parsed are returned
// with ParseError set.
func (c *TrelloClient) GetCards(ctx context.Context, listIDs ...string) ([]models.Card, error) {
	lists, err := c.GetLists(ctx)
	if err != nil {
		return nil, err
	}
	listNames := make(map[string]string, len(lists))
	for _, l := range lists {
		listNames[l.ID] = l.Name
	}
	wanted := make(map[string]bool, len(listIDs))
	for _, id := range listIDs {
		wanted[id] = true
	}

	var raw []trelloCard
	params := url.Values{"members": {"true"}, "customFieldItems": {"true"}}
	if err := c.get(ctx, "/1/boards/"+c.boardID+"/cards", params, &raw); err != nil {
		return nil, err
	}

	cards := make([]models.Card, 0, len(raw))
	for _, rc := range raw {
		if len(wanted) > 0 && !wanted[rc.IDList] {
			continue
		}
		cards = append(cards, toCard(rc, listNames[rc.IDList]))
	}
	slog.Debug("TrelloClient.GetCards: fetched", "lists", len(listIDs), "cards", len(cards))
	return cards, nil
}

func toCard(rc trelloCard, listName string) models.Card {
	card := models.Card{
		ID:       rc.ID,
		Name:     rc.Name,
		URL:      rc.ShortURL,
		ListID:   rc.IDList,
		ListName: listName,
		Labels:   rc.Labels,
	}
	if card.URL == "" {
		card.URL = rc.URL
	}
	for _, m := range rc.Members {
		card.Members = append(card.Members, m.Username)
	}
	if rc.Due != nil && *rc.Due != "" {
		due, err := time.Parse(time.RFC3339, *rc.Due)
		if err != nil {
			card.ParseError = fmt.Sprintf("invalid due date %q", *rc.Due)
		} else {
			card.Due = &due
		}
	}
	if strings.TrimSpace(card.Name) == "" {
		card.ParseError = "card has no name"
	}
	return card
}

// GetCustomFields returns the editorial fields of a card, mapped through the configured names.
func (c *TrelloClient) GetCustomFields(ctx context.Context, cardID string) (models.CustomFields, error) {
	defs, err := c.fieldDefs(ctx)
	if err != nil {
		return models.CustomFields{}, err
	}
	var items []trelloFieldItem
	if err := c.get(ctx, "/1/cards/"+cardID+"/customFieldItems", nil, &items); err != nil {
		return models.CustomFields{}, err
	}

	byName := make(map[string]string, len(items))
	for _, item := range items {
		def, ok := defs[item.IDCustomField]
		if !ok {
			continue
		}
		byName[def.Name] = fieldText(def, item)
	}

	names := c.cfg.Fields
	var f models.CustomFields
	f.Title = byName[names[models.FieldTitle]]
	f.GoogleDoc = byName[names[models.FieldGoogleDoc]]
	f.Authors = splitPeople(byName[names[models.FieldAuthors]])
	f.Editors = splitPeople(byName[names[models.FieldEditors]])
	f.Illustrators = splitPeople(byName[names[models.FieldIllustrators]])
	f.Cover = byName[names[models.FieldCover]]
	return f, nil
}

func fieldText(def trelloFieldDef, item trelloFieldItem) string {
	if item.IDValue != "" {
		for _, opt := range def.Options {
			if opt.ID == item.IDValue {
				return strings.TrimSpace(opt.Value.Text)
			}
		}
		return ""
	}
	if item.Value == nil {
		return ""
	}
	switch {
	case item.Value.Text != "":
		return strings.TrimSpace(item.Value.Text)
	case item.Value.Number != "":
		return item.Value.Number
	case item.Value.Date != "":
		return item.Value.Date
	default:
		return item.Value.Checked
	}
}

func splitPeople(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *TrelloClient) fieldDefs(ctx context.Context) (map[string]trelloFieldDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fields != nil {
		return c.fields, nil
	}
	var raw []trelloFieldDef
	if err := c.get(ctx, "/1/boards/"+c.boardID+"/customFields", nil, &raw); err != nil {
		return nil, err
	}
	c.fields = make(map[string]trelloFieldDef, len(raw))
	for _, d := range raw {
		c.fields[d.ID] = d
	}
	return c.fields, nil
}

// GetListIDsFromAliases resolves aliases through the configured list names.
// List names are matched case-insensitively; names missing from the board are logged and skipped.
func (c *TrelloClient) GetListIDsFromAliases(ctx context.Context, aliases []string) ([]string, error) {
	lists, err := c.GetLists(ctx)
	if err != nil {
		return nil, err
	}
	return ResolveAliases(c.cfg, lists, aliases)
}

// ResolveAliases maps aliases to list ids using cfg and the given board lists.
func ResolveAliases(cfg *config.Config, lists []models.BoardList, aliases []string) ([]string, error) {
	byName := make(map[string]string, len(lists))
	for _, l := range lists {
		byName[strings.ToLower(strings.TrimSpace(l.Name))] = l.ID
	}
	seen := map[string]bool{}
	var ids []string
	for _, alias := range aliases {
		names, ok := cfg.ListNames(alias)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
		}
		for _, name := range names {
			id, ok := byName[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				slog.Warn("ResolveAliases: list not found on board", "alias", alias, "list", name)
				continue
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (c *TrelloClient) get(ctx context.Context, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("trello: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// Credentials stay out of the URL; transport errors quote it.
	req.Header.Set("Authorization", fmt.Sprintf(`OAuth oauth_consumer_key="%s", oauth_token="%s"`, c.key, c.token))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trello: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("trello: GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("trello: decode %s: %w", path, err)
	}
	return nil
}
