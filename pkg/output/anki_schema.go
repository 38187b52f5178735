package output

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	// ModelID is the fixed note type id of duoload notes.
	ModelID int64 = 1607392319

	// ModelName is the note type name shown in Anki.
	ModelName = "Duoload Vocabulary"

	// DeckID is the fixed id of the generated deck.
	DeckID int64 = 2059400110

	// DefaultDeckName is the name of the generated deck.
	DefaultDeckName = "Duocards Vocabulary"

	// DefaultDeckDescription is shown on the deck overview.
	DefaultDeckDescription = "Vocabulary imported from Duocards"

	questionFormat = "{{Front}}"
	answerFormat   = "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}\n\n{{#Example}}<div class=\"example\">{{Example}}</div>{{/Example}}"

	cardCSS = `.card {
  font-family: arial;
  font-size: 20px;
  text-align: center;
  color: black;
  background-color: white;
}
.example {
  font-size: 16px;
  font-style: italic;
  margin-top: 12px;
  color: #555;
}`

	// schemaVersion is the collection format understood by every Anki release that imports .apkg.
	schemaVersion = 11

	// fieldSeparator joins note fields in notes.flds.
	fieldSeparator = "\x1f"
)

// modelFields lists the note type fields in order.
var modelFields = []string{"Front", "Back", "Example"}

// collectionSchema creates an empty Anki collection.
var collectionSchema = []string{
	`CREATE TABLE col (
		id     integer primary key,
		crt    integer not null,
		mod    integer not null,
		scm    integer not null,
		ver    integer not null,
		dty    integer not null,
		usn    integer not null,
		ls     integer not null,
		conf   text not null,
		models text not null,
		decks  text not null,
		dconf  text not null,
		tags   text not null
	)`,
	`CREATE TABLE notes (
		id    integer primary key,
		guid  text not null,
		mid   integer not null,
		mod   integer not null,
		usn   integer not null,
		tags  text not null,
		flds  text not null,
		sfld  integer not null,
		csum  integer not null,
		flags integer not null,
		data  text not null
	)`,
	`CREATE TABLE cards (
		id     integer primary key,
		nid    integer not null,
		did    integer not null,
		ord    integer not null,
		mod    integer not null,
		usn    integer not null,
		type   integer not null,
		queue  integer not null,
		due    integer not null,
		ivl    integer not null,
		factor integer not null,
		reps   integer not null,
		lapses integer not null,
		left   integer not null,
		odue   integer not null,
		odid   integer not null,
		flags  integer not null,
		data   text not null
	)`,
	`CREATE TABLE revlog (
		id      integer primary key,
		cid     integer not null,
		usn     integer not null,
		ease    integer not null,
		ivl     integer not null,
		lastIvl integer not null,
		factor  integer not null,
		time    integer not null,
		type    integer not null
	)`,
	`CREATE TABLE graves (
		usn  integer not null,
		oid  integer not null,
		type integer not null
	)`,
	`CREATE INDEX ix_notes_usn ON notes (usn)`,
	`CREATE INDEX ix_cards_usn ON cards (usn)`,
	`CREATE INDEX ix_revlog_usn ON revlog (usn)`,
	`CREATE INDEX ix_cards_nid ON cards (nid)`,
	`CREATE INDEX ix_cards_sched ON cards (did, queue, due)`,
	`CREATE INDEX ix_revlog_cid ON revlog (cid)`,
	`CREATE INDEX ix_notes_csum ON notes (csum)`,
}

type modelField struct {
	Name   string   `json:"name"`
	Ord    int      `json:"ord"`
	Font   string   `json:"font"`
	Size   int      `json:"size"`
	Media  []string `json:"media"`
	RTL    bool     `json:"rtl"`
	Sticky bool     `json:"sticky"`
}

type modelTemplate struct {
	Name  string `json:"name"`
	Ord   int    `json:"ord"`
	Qfmt  string `json:"qfmt"`
	Afmt  string `json:"afmt"`
	Bqfmt string `json:"bqfmt"`
	Bafmt string `json:"bafmt"`
	Did   *int64 `json:"did"`
	Bfont string `json:"bfont"`
	Bsize int    `json:"bsize"`
}

type noteModel struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      int             `json:"type"`
	Mod       int64           `json:"mod"`
	Usn       int             `json:"usn"`
	Sortf     int             `json:"sortf"`
	Did       int64           `json:"did"`
	Tmpls     []modelTemplate `json:"tmpls"`
	Flds      []modelField    `json:"flds"`
	CSS       string          `json:"css"`
	LatexPre  string          `json:"latexPre"`
	LatexPost string          `json:"latexPost"`
	LatexSVG  bool            `json:"latexsvg"`
	Req       []any           `json:"req"`
	Tags      []string        `json:"tags"`
	Vers      []any           `json:"vers"`
}

type deck struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Desc             string `json:"desc"`
	Mod              int64  `json:"mod"`
	Usn              int    `json:"usn"`
	Collapsed        bool   `json:"collapsed"`
	BrowserCollapsed bool   `json:"browserCollapsed"`
	Conf             int    `json:"conf"`
	Dyn              int    `json:"dyn"`
	ExtendNew        int    `json:"extendNew"`
	ExtendRev        int    `json:"extendRev"`
	NewToday         [2]int `json:"newToday"`
	RevToday         [2]int `json:"revToday"`
	LrnToday         [2]int `json:"lrnToday"`
	TimeToday        [2]int `json:"timeToday"`
}

// collectionJSON holds the JSON columns of the col row.
type collectionJSON struct {
	Conf   string
	Models string
	Decks  string
	Dconf  string
	Tags   string
}

func buildCollectionJSON(deckName, deckDesc string, now time.Time) (collectionJSON, error) {
	modSeconds := now.Unix()

	fields := make([]modelField, 0, len(modelFields))
	for i, name := range modelFields {
		fields = append(fields, modelField{Name: name, Ord: i, Font: "Arial", Size: 20, Media: []string{}})
	}

	model := noteModel{
		ID:    strconv.FormatInt(ModelID, 10),
		Name:  ModelName,
		Mod:   modSeconds,
		Usn:   -1,
		Did:   DeckID,
		Flds:  fields,
		CSS:   cardCSS,
		Tags:  []string{},
		Vers:  []any{},
		Req:   []any{[]any{0, "any", []int{0}}},
		Tmpls: []modelTemplate{{Name: "Card 1", Qfmt: questionFormat, Afmt: answerFormat}},
		LatexPre: "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage[utf8]{inputenc}\n" +
			"\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\setlength{\\parindent}{0in}\n\\begin{document}\n",
		LatexPost: "\\end{document}",
	}

	decks := map[string]deck{
		"1": {
			ID: 1, Name: "Default", Conf: 1, Usn: -1, Mod: modSeconds, ExtendRev: 50,
		},
		strconv.FormatInt(DeckID, 10): {
			ID: DeckID, Name: deckName, Desc: deckDesc, Conf: 1, Usn: -1, Mod: modSeconds, ExtendRev: 50,
		},
	}

	conf := map[string]any{
		"activeDecks":   []int64{1},
		"curDeck":       1,
		"newSpread":     0,
		"collapseTime":  1200,
		"timeLim":       0,
		"estTimes":      true,
		"dueCounts":     true,
		"curModel":      strconv.FormatInt(ModelID, 10),
		"nextPos":       1,
		"sortType":      "noteFld",
		"sortBackwards": false,
		"addToCur":      true,
	}

	dconf := map[string]any{
		"1": map[string]any{
			"id":       1,
			"name":     "Default",
			"mod":      0,
			"usn":      0,
			"maxTaken": 60,
			"autoplay": true,
			"timer":    0,
			"replayq":  true,
			"dyn":      false,
			"new": map[string]any{
				"bury":          true,
				"delays":        []float64{1, 10},
				"initialFactor": 2500,
				"ints":          []int{1, 4, 7},
				"order":         1,
				"perDay":        20,
				"separate":      true,
			},
			"lapse": map[string]any{
				"delays":      []float64{10},
				"leechAction": 0,
				"leechFails":  8,
				"minInt":      1,
				"mult":        0,
			},
			"rev": map[string]any{
				"bury":     true,
				"ease4":    1.3,
				"fuzz":     0.05,
				"ivlFct":   1,
				"maxIvl":   36500,
				"minSpace": 1,
				"perDay":   100,
			},
		},
	}

	var out collectionJSON
	var err error
	if out.Conf, err = marshalString(conf); err != nil {
		return out, err
	}
	if out.Models, err = marshalString(map[string]noteModel{model.ID: model}); err != nil {
		return out, err
	}
	if out.Decks, err = marshalString(decks); err != nil {
		return out, err
	}
	if out.Dconf, err = marshalString(dconf); err != nil {
		return out, err
	}
	out.Tags = "{}"
	return out, nil
}

func marshalString(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
