package prompt

import (
	"strings"
	"testing"

	"ghostwriter/pkg/model"
)

func testOrder() *model.ManuscriptOrder {
	return &model.ManuscriptOrder{
		PlaceName:        "서울숲 브런치카페 모먼트",
		Address:          "서울 성동구 서울숲2길 10",
		Photos:           []model.Photo{{Index: 1, Data: []byte{0xFF, 0xD8}, MIME: "image/jpeg"}},
		SearchKeywords:   []string{"서울숲 카페"},
		RequiredKeywords: []string{"가격", "분위기"},
		Hashtags:         []string{"서울숲카페"},
	}
}

func testCaptions() []model.CaptionItem {
	return []model.CaptionItem{
		{Index: 1, Caption: "창가 자리에서 본 매장 내부", Tags: []string{"인테리어", "조명", "창가"}},
	}
}

func mustBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func TestCaptionPrompt(t *testing.T) {
	b := mustBuilder(t)
	order := testOrder()
	parts, err := b.Caption(order, order.Photos[0], 1, model.Persona{Tone: model.ToneNeutral})
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want text + image", len(parts))
	}
	text := parts[0].Text
	for _, want := range []string{order.PlaceName, `"index"`, `"caption"`, `"tags"`, `"ocr"`, "서울숲 카페"} {
		if !strings.Contains(text, want) {
			t.Errorf("caption prompt missing %q", want)
		}
	}
	if parts[1].MIME != "image/jpeg" {
		t.Errorf("image part MIME = %q", parts[1].MIME)
	}
}

func TestDraftPromptContents(t *testing.T) {
	b := mustBuilder(t)
	parts, err := b.Draft(testOrder(), testCaptions(), model.Persona{Tone: model.ToneFriendly}, "주차 정보를 꼭 넣어주세요", "")
	if err != nil {
		t.Fatal(err)
	}
	text := parts[0].Text
	for _, want := range []string{
		"서울숲 브런치카페 모먼트",
		"[사진1]",
		"가격", "분위기",
		"1500", "2300",
		"주차 정보를 꼭 넣어주세요",
		"인테리어",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("draft prompt missing %q", want)
		}
	}
	if strings.Contains(text, "rejected by the customer") {
		t.Error("draft prompt contains revision section without a revision reason")
	}
}

func TestDraftPromptRevisionReason(t *testing.T) {
	b := mustBuilder(t)
	parts, err := b.Draft(testOrder(), testCaptions(), model.Persona{}, "", "말투가 너무 딱딱해요")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(parts[0].Text, "말투가 너무 딱딱해요") {
		t.Error("revision reason missing from draft prompt")
	}
}

func TestCorrectionPromptListsFailures(t *testing.T) {
	b := mustBuilder(t)
	failures := []string{"title too short", "keyword \"가격\" missing"}
	parts, err := b.Correction(testOrder(), testCaptions(), "원래 초안 텍스트", failures)
	if err != nil {
		t.Fatal(err)
	}
	text := parts[0].Text
	for _, f := range failures {
		if !strings.Contains(text, f) {
			t.Errorf("correction prompt missing failure %q", f)
		}
	}
	if !strings.Contains(text, "원래 초안 텍스트") {
		t.Error("correction prompt missing original draft")
	}
}

func TestShortReviewPromptModes(t *testing.T) {
	b := mustBuilder(t)
	order := &model.ShortReviewOrder{
		PlaceName:        "모먼트",
		MenuName:         "리코타 샐러드",
		RequiredKeywords: []string{"맛"},
		LengthMode:       model.LengthFixed,
		TargetLength:     80,
		OutputCount:      3,
	}
	parts, err := b.ShortReview(order, model.Persona{Tone: model.ToneTrendy}, "", 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	text := parts[0].Text
	for _, want := range []string{"exactly 80", "리코타 샐러드", "review 2 of 3"} {
		if !strings.Contains(text, want) {
			t.Errorf("short-review prompt missing %q", want)
		}
	}

	order.LengthMode = model.LengthRange
	order.MaxLength = 299
	parts, err = b.ShortReview(order, model.Persona{}, "", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(parts[0].Text, "shorter than 299") {
		t.Error("range-mode prompt missing length cap")
	}
	if strings.Contains(parts[0].Text, "review 1 of 1") {
		t.Error("single-output prompt should not carry a batch marker")
	}
}

func TestDeriveDifferentiatesPersonas(t *testing.T) {
	quiet := Derive(model.Persona{
		Age: model.AgeFifties, Gender: model.GenderMale,
		Personality: model.PersonalityCalm, Tone: model.ToneProfessional,
	})
	loud := Derive(model.Persona{
		Age: model.AgeTwenties, Gender: model.GenderFemale,
		Personality: model.PersonalityLively, Tone: model.ToneTrendy,
	})

	if quiet == loud {
		t.Fatal("opposite personas derived identical directives")
	}
	if quiet.MaxExclamations != 0 || quiet.MaxEmoji != 0 {
		t.Errorf("professional/calm persona allows energy markers: %+v", quiet)
	}
	if loud.MaxExclamations <= quiet.MaxExclamations {
		t.Errorf("trendy/lively persona not louder than professional/calm: %+v vs %+v", loud, quiet)
	}
	if quiet.Diction == loud.Diction {
		t.Error("age/gender bands derived identical diction")
	}
}

func TestDeriveDeterministic(t *testing.T) {
	p := model.Persona{Age: model.AgeThirties, Gender: model.GenderFemale, Personality: model.PersonalityAnalytic, Tone: model.ToneBright}
	if Derive(p) != Derive(p) {
		t.Fatal("Derive is not deterministic")
	}
	if Derive(p).SentenceBias != "long" {
		t.Errorf("analytic personality should bias long sentences, got %q", Derive(p).SentenceBias)
	}
}

func TestParseCaption(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", `{"index": 1, "caption": "테이블 위 브런치", "tags": ["브런치", "플레이팅", "커피"], "ocr": []}`, false},
		{"fenced", "```json\n{\"index\": 1, \"caption\": \"테이블\", \"tags\": [\"브런치\", \"플레이팅\", \"커피\"], \"ocr\": [\"모먼트\"]}\n```", false},
		{"not json", "이건 그냥 문장입니다.", true},
		{"too few tags", `{"index": 1, "caption": "테이블", "tags": ["하나"], "ocr": []}`, true},
	}
	for _, tc := range tests {
		item, err := ParseCaption(tc.input, 1)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %+v", tc.name, item)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if item.Index != 1 {
			t.Errorf("%s: index = %d", tc.name, item.Index)
		}
		if len(item.Tags) < 3 {
			t.Errorf("%s: tags = %v", tc.name, item.Tags)
		}
	}
}

func TestParseCaptionFillsIndex(t *testing.T) {
	item, err := ParseCaption(`{"caption": "간판", "tags": ["간판", "입구", "외관"], "ocr": []}`, 4)
	if err != nil {
		t.Fatal(err)
	}
	if item.Index != 4 {
		t.Errorf("index = %d, want 4", item.Index)
	}
}
