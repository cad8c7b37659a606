package bookmark

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/hitoshi/bookmarkman/internal/model"
)

// reorderEntry はpositionの型を厳密に検証するため、生のJSONのまま受け取る。
type reorderEntry struct {
	ID       *string         `json:"id"`
	Position json.RawMessage `json:"position"`
}

// ParseReorderPayload はupdatesフィールドの生JSONを検証して並び替えバッチに変換する。
// 配列でない場合、idが空または文字列でない場合、positionが整数でない場合は
// 書き込み前にINVALID_PAYLOADを返す。
func ParseReorderPayload(raw json.RawMessage) ([]model.PositionUpdate, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, model.NewInvalidPayloadError("updatesが配列ではありません")
	}

	var entries []reorderEntry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, model.NewInvalidPayloadError("updatesの要素を解析できません")
	}

	updates := make([]model.PositionUpdate, 0, len(entries))
	for i, e := range entries {
		if e.ID == nil || strings.TrimSpace(*e.ID) == "" {
			return nil, model.NewInvalidPayloadError("updates[" + strconv.Itoa(i) + "].idが空です")
		}
		pos, ok := parseInt32(e.Position)
		if !ok {
			return nil, model.NewInvalidPayloadError("updates[" + strconv.Itoa(i) + "].positionが整数ではありません")
		}
		updates = append(updates, model.PositionUpdate{ID: *e.ID, Position: pos})
	}
	return updates, nil
}

// parseInt32 はJSON数値をpositionカラムに収まる整数として解釈する。
// 1.0や2e0のように整数値を表す表記も受け付ける。
func parseInt32(raw json.RawMessage) (int, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}

	if n, err := num.Int64(); err == nil {
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	}

	f, err := num.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// NewSearchQuery はクエリパラメータから検索条件を組み立てる。
// tagsはカンマ区切りで、前後の空白を除き空要素を捨てる。matchの既定値はany。
func NewSearchQuery(text, tags, match string) (model.SearchQuery, error) {
	q := model.SearchQuery{
		Text:  strings.TrimSpace(text),
		Tags:  normalizeTags(strings.Split(tags, ",")),
		Match: model.TagMatchAny,
	}

	switch model.TagMatch(strings.ToLower(strings.TrimSpace(match))) {
	case "", model.TagMatchAny:
	case model.TagMatchAll:
		q.Match = model.TagMatchAll
	default:
		return model.SearchQuery{}, model.NewInvalidMatchError(match)
	}
	return q, nil
}

// normalizeTags は前後の空白を除き、空要素と重複を捨てる。順序は入力順を保つ。
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := []string{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
