package weather

import (
	"errors"
	"strings"
	"testing"
)

const adelaideFeed = `id:IDS60901
name:Adelaide (West Terrace /  ngayirdapira)
state: SA
local_date_time_full:20230715160000
lat:-34.9
air_temp:13.3
wind_dir:S

id:IDS60902
name:Kent Town
air_temp:12.9
`

func TestParseFeed(t *testing.T) {
	records, err := ParseFeed(strings.NewReader(adelaideFeed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.StationID() != "IDS60901" {
		t.Fatalf("unexpected id %q", first.StationID())
	}
	if first["name"] != "Adelaide (West Terrace /  ngayirdapira)" {
		t.Fatalf("value must keep its inner spacing, got %q", first["name"])
	}
	if first["state"] != "SA" || first["wind_dir"] != "S" {
		t.Fatalf("unexpected string fields: %+v", first)
	}
	if first["air_temp"] != 13.3 || first["lat"] != -34.9 {
		t.Fatalf("numeric fields not converted: %+v", first)
	}
	if first["local_date_time_full"] != 20230715160000.0 {
		t.Fatalf("unexpected timestamp field: %v", first["local_date_time_full"])
	}

	if records[1]["name"] != "Kent Town" || records[1]["air_temp"] != 12.9 {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestParseFeedSplitsAtFirstColon(t *testing.T) {
	records, err := ParseFeed(strings.NewReader("id:A\nlocal_time:15/04:00pm\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0]["local_time"] != "15/04:00pm" {
		t.Fatalf("expected value after first colon, got %q", records[0]["local_time"])
	}
}

func TestParseFeedIDStaysString(t *testing.T) {
	records, err := ParseFeed(strings.NewReader("id:94672\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0]["id"] != "94672" {
		t.Fatalf("expected string id, got %#v", records[0]["id"])
	}
}

func TestParseFeedSkipsMalformedLines(t *testing.T) {
	records, err := ParseFeed(strings.NewReader("id:A\nno colon here\n:orphan\nair_temp:1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records[0]) != 2 {
		t.Fatalf("expected id and air_temp only, got %+v", records[0])
	}
}

func TestParseFeedRejectsMissingID(t *testing.T) {
	for name, feed := range map[string]string{
		"empty":        "",
		"key first":    "name:Adelaide\nid:A\n",
		"blank id":     "id:\n",
		"no id at all": "air_temp:1\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFeed(strings.NewReader(feed)); !errors.Is(err, ErrMissingStationID) {
				t.Fatalf("expected ErrMissingStationID, got %v", err)
			}
		})
	}
}
