package protection

import (
	"math"
	"testing"
	"time"

	"raidguard/internal/storage"
)

func TestUsernameScore(t *testing.T) {
	scorer := NewScorer(nil)
	cases := []struct {
		name string
		want int
	}{
		{"", 0},
		{"alice", 0},
		{"12345abc", weightDigits},
		{"a_b", 0},
		{"ab_c-e", 0},
		{"a__b", weightSymbols},
		{"ab", weightShortName},
		{"FreeNitroRaid", weightBlacklist},
		{"HACKER", weightBlacklist},
		{"ééé", weightSymbols + weightNonASCII},
		{"1", weightDigits + weightShortName},
	}
	for _, tc := range cases {
		if got := scorer.UsernameScore(tc.name); got != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestCustomBlacklist(t *testing.T) {
	scorer := NewScorer([]string{" Spam ", ""})
	if got := scorer.UsernameScore("xSPAMx"); got != weightBlacklist {
		t.Fatalf("expected blacklist hit, got %d", got)
	}
	if got := scorer.UsernameScore("raider"); got != 0 {
		t.Fatalf("default words should not apply to a custom list, got %d", got)
	}
}

func TestAccountAgeScore(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	if got := AccountAgeScore(now.Add(-time.Hour), now); got != weightNewAccount {
		t.Fatalf("expected new account score, got %d", got)
	}
	if got := AccountAgeScore(now.Add(-24*time.Hour), now); got != weightNewAccount {
		t.Fatalf("exactly one day old should still count, got %d", got)
	}
	if got := AccountAgeScore(now.Add(-25*time.Hour), now); got != 0 {
		t.Fatalf("expected 0 for old account, got %d", got)
	}
	if got := AccountAgeScore(time.Time{}, now); got != 0 {
		t.Fatalf("expected 0 for unknown creation time, got %d", got)
	}
}

func TestAvatarScore(t *testing.T) {
	if AvatarScore("") != weightDefaultAvatar {
		t.Fatalf("default avatar should score")
	}
	if AvatarScore("a_1234") != 0 {
		t.Fatalf("custom avatar should not score")
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("raider", "raider"); got != 1.0 {
		t.Fatalf("identical strings should be 1.0, got %f", got)
	}
	if got := Similarity("", "raider"); got != 0 {
		t.Fatalf("empty input should be 0, got %f", got)
	}
	if got := Similarity("", ""); got != 0 {
		t.Fatalf("two empty inputs should be 0, got %f", got)
	}
	if got := Similarity("kitten", "sitting"); math.Abs(got-4.0/7.0) > 1e-9 {
		t.Fatalf("expected 4/7, got %f", got)
	}
	if got := Similarity("żółw", "żółw"); got != 1.0 {
		t.Fatalf("identical unicode strings should be 1.0, got %f", got)
	}
}

func TestSimilarityScoresCapped(t *testing.T) {
	candidate := JoinRecord{IdentityID: "u1", DisplayName: "raider1", AvatarSignature: "abc"}
	peers := []JoinRecord{
		candidate,
		{IdentityID: "u2", DisplayName: "raider2", AvatarSignature: "abc"},
		{IdentityID: "u3", DisplayName: "raider3", AvatarSignature: "abc"},
		{IdentityID: "u4", DisplayName: "someone", AvatarSignature: "zzz"},
	}
	name, avatar := SimilarityScores(candidate, peers)
	if name != weightSimilarName || avatar != weightDuplicateAvatar {
		t.Fatalf("expected capped scores %d/%d, got %d/%d", weightSimilarName, weightDuplicateAvatar, name, avatar)
	}
}

func TestSimilarityIgnoresSelfAndDefaultAvatars(t *testing.T) {
	candidate := JoinRecord{IdentityID: "u1", DisplayName: "raider"}
	name, avatar := SimilarityScores(candidate, []JoinRecord{candidate})
	if name != 0 || avatar != 0 {
		t.Fatalf("a candidate must not match itself, got %d/%d", name, avatar)
	}

	peer := JoinRecord{IdentityID: "u2", DisplayName: "completely different"}
	name, avatar = SimilarityScores(candidate, []JoinRecord{peer})
	if name != 0 || avatar != 0 {
		t.Fatalf("default avatars must not count as duplicates, got %d/%d", name, avatar)
	}
}

func TestScoreRespectsRules(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	scorer := NewScorer(nil)
	candidate := JoinRecord{IdentityID: "u1", DisplayName: "raider", AccountCreatedAt: now.Add(-time.Hour)}
	peers := []JoinRecord{candidate, {IdentityID: "u2", DisplayName: "raider"}}

	all := scorer.Score(candidate, peers, AllRules, now)
	want := Breakdown{Username: weightBlacklist, AccountAge: weightNewAccount, Avatar: weightDefaultAvatar, NameSimilarity: weightSimilarName}
	if all != want {
		t.Fatalf("expected %+v, got %+v", want, all)
	}
	if all.Total() != 17 {
		t.Fatalf("expected total 17, got %d", all.Total())
	}

	none := scorer.Score(candidate, peers, 0, now)
	if none.Total() != 0 {
		t.Fatalf("expected 0 with every rule off, got %+v", none)
	}

	ageOnly := scorer.Score(candidate, peers, RuleAccountAge, now)
	if ageOnly.Total() != weightNewAccount {
		t.Fatalf("expected only the age score, got %+v", ageOnly)
	}
}

func TestRulesFromSettings(t *testing.T) {
	rules := RulesFromSettings(storage.ProtectionSettings{CheckUsername: true, CheckSimilarity: true})
	if !rules.Has(RuleUsername) || !rules.Has(RuleSimilarity) {
		t.Fatalf("expected username and similarity rules, got %b", rules)
	}
	if rules.Has(RuleAccountAge) || rules.Has(RuleAvatar) {
		t.Fatalf("unexpected rules %b", rules)
	}
	if RulesFromSettings(DefaultSettings(5, 0)) != AllRules {
		t.Fatalf("default settings should enable every rule")
	}
}
