package fever

import (
	"reflect"
	"testing"
)

func TestParseMark(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   markRequest
		ok     bool
	}{
		{
			name:   "item read with id list",
			params: Params{"mark": "item", "as": "read", "id": "1,2,3"},
			want:   markRequest{action: actionRead, scope: itemScope{IDs: []int64{1, 2, 3}}},
			ok:     true,
		},
		{
			name:   "item saved",
			params: Params{"mark": "item", "as": "saved", "id": "7"},
			want:   markRequest{action: actionSaved, scope: itemScope{IDs: []int64{7}}},
			ok:     true,
		},
		{
			name:   "feed read with before cutoff",
			params: Params{"mark": "feed", "as": "read", "id": "4", "before": "1700000000"},
			want:   markRequest{action: actionRead, scope: feedScope{ID: 4, Before: 1700000000}},
			ok:     true,
		},
		{
			name:   "feed read without cutoff",
			params: Params{"mark": "feed", "as": "read", "id": "4"},
			want:   markRequest{action: actionRead, scope: feedScope{ID: 4}},
			ok:     true,
		},
		{
			name:   "group unread",
			params: Params{"mark": "group", "as": "unread", "id": "2", "before": "1700000000"},
			want:   markRequest{action: actionUnread, scope: groupScope{ID: 2, Before: 1700000000}},
			ok:     true,
		},
		{
			name:   "missing as",
			params: Params{"mark": "item", "id": "1"},
			ok:     false,
		},
		{
			name:   "missing id",
			params: Params{"mark": "item", "as": "read"},
			ok:     false,
		},
		{
			name:   "unknown action",
			params: Params{"mark": "item", "as": "starred", "id": "1"},
			ok:     false,
		},
		{
			name:   "unknown scope",
			params: Params{"mark": "everything", "as": "read", "id": "1"},
			ok:     false,
		},
		{
			name:   "saved is item-scope only",
			params: Params{"mark": "feed", "as": "saved", "id": "4"},
			ok:     false,
		},
		{
			name:   "unsaved is item-scope only",
			params: Params{"mark": "group", "as": "unsaved", "id": "4"},
			ok:     false,
		},
		{
			name:   "malformed item id list",
			params: Params{"mark": "item", "as": "read", "id": "1,abc,3"},
			ok:     false,
		},
		{
			name:   "malformed feed id",
			params: Params{"mark": "feed", "as": "read", "id": "not-a-number"},
			ok:     false,
		},
		{
			name:   "empty id",
			params: Params{"mark": "item", "as": "read", "id": ""},
			ok:     false,
		},
		{
			name:   "malformed before is ignored",
			params: Params{"mark": "feed", "as": "read", "id": "4", "before": "yesterday"},
			want:   markRequest{action: actionRead, scope: feedScope{ID: 4}},
			ok:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseMark(tt.params)
			if ok != tt.ok {
				t.Fatalf("parseMark() ok = %v, want %v", ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseMark() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseIDList(t *testing.T) {
	tests := []struct {
		raw  string
		want []int64
		ok   bool
	}{
		{"1,2,3", []int64{1, 2, 3}, true},
		{"42", []int64{42}, true},
		{" 1 , 2 ", []int64{1, 2}, true},
		{"", nil, false},
		{"1,,3", nil, false},
		{"a,b", nil, false},
	}

	for _, tt := range tests {
		got, ok := parseIDList(tt.raw)
		if ok != tt.ok {
			t.Errorf("parseIDList(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			continue
		}
		if ok && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseIDList(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestJoinIDs(t *testing.T) {
	if got := joinIDs([]int64{5, 1, 9}); got != "5,1,9" {
		t.Errorf("joinIDs() = %q, want 5,1,9", got)
	}
	if got := joinIDs(nil); got != "" {
		t.Errorf("joinIDs(nil) = %q, want empty", got)
	}
}
