package protection

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"raidguard/internal/storage"

	"github.com/agnivade/levenshtein"
)

// Rule selects which heuristics contribute to a score.
type Rule uint8

const (
	RuleUsername Rule = 1 << iota
	RuleAccountAge
	RuleAvatar
	RuleSimilarity
)

const AllRules = RuleUsername | RuleAccountAge | RuleAvatar | RuleSimilarity

func (r Rule) Has(flag Rule) bool {
	return r&flag != 0
}

func RulesFromSettings(settings storage.ProtectionSettings) Rule {
	var rules Rule
	if settings.CheckUsername {
		rules |= RuleUsername
	}
	if settings.CheckAccountAge {
		rules |= RuleAccountAge
	}
	if settings.CheckAvatar {
		rules |= RuleAvatar
	}
	if settings.CheckSimilarity {
		rules |= RuleSimilarity
	}
	return rules
}

const (
	weightDigits          = 2
	weightSymbols         = 3
	weightShortName       = 1
	weightBlacklist       = 4
	weightNonASCII        = 2
	weightNewAccount      = 5
	weightDefaultAvatar   = 3
	weightSimilarName     = 5
	weightDuplicateAvatar = 7

	newAccountAge       = 24 * time.Hour
	nameSimilarityLimit = 0.8
)

var DefaultBlacklist = []string{"raid", "bot", "free", "nitro", "hack"}

// Breakdown is a suspicion score split by heuristic.
type Breakdown struct {
	Username         int
	AccountAge       int
	Avatar           int
	NameSimilarity   int
	AvatarSimilarity int
}

func (b Breakdown) Total() int {
	return b.Username + b.AccountAge + b.Avatar + b.NameSimilarity + b.AvatarSimilarity
}

func (b Breakdown) String() string {
	return fmt.Sprintf("name=%d age=%d avatar=%d similar_name=%d same_avatar=%d",
		b.Username, b.AccountAge, b.Avatar, b.NameSimilarity, b.AvatarSimilarity)
}

type Scorer struct {
	blacklist []string
}

// NewScorer builds a scorer matching the given words case-insensitively.
// A nil blacklist uses DefaultBlacklist.
func NewScorer(blacklist []string) *Scorer {
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	words := make([]string, 0, len(blacklist))
	for _, word := range blacklist {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			words = append(words, word)
		}
	}
	return &Scorer{blacklist: words}
}

// Score rates candidate against the other members of the same evaluation
// window. Peers sharing the candidate's identity are ignored.
func (s *Scorer) Score(candidate JoinRecord, peers []JoinRecord, rules Rule, now time.Time) Breakdown {
	var b Breakdown
	if rules.Has(RuleUsername) {
		b.Username = s.UsernameScore(candidate.DisplayName)
	}
	if rules.Has(RuleAccountAge) {
		b.AccountAge = AccountAgeScore(candidate.AccountCreatedAt, now)
	}
	if rules.Has(RuleAvatar) {
		b.Avatar = AvatarScore(candidate.AvatarSignature)
	}
	if rules.Has(RuleSimilarity) {
		b.NameSimilarity, b.AvatarSimilarity = SimilarityScores(candidate, peers)
	}
	return b
}

func (s *Scorer) UsernameScore(name string) int {
	length := utf8.RuneCountInString(name)
	if length == 0 {
		return 0
	}

	var digits, symbols, nonASCII int
	for _, r := range name {
		if unicode.IsDigit(r) {
			digits++
		}
		if !isASCIIAlnum(r) {
			symbols++
		}
		if r > unicode.MaxASCII {
			nonASCII++
		}
	}

	score := 0
	if digits*2 > length {
		score += weightDigits
	}
	// strictly more than a third; a 0.33 cutoff would also flag "a_b"
	if symbols*3 > length {
		score += weightSymbols
	}
	if length < 3 {
		score += weightShortName
	}
	lower := strings.ToLower(name)
	for _, word := range s.blacklist {
		if strings.Contains(lower, word) {
			score += weightBlacklist
			break
		}
	}
	if nonASCII*4 > length {
		score += weightNonASCII
	}
	return score
}

func AccountAgeScore(createdAt, now time.Time) int {
	if createdAt.IsZero() {
		return 0
	}
	if now.Sub(createdAt) <= newAccountAge {
		return weightNewAccount
	}
	return 0
}

func AvatarScore(signature string) int {
	if signature == "" {
		return weightDefaultAvatar
	}
	return 0
}

// SimilarityScores awards each category at most once, on the first peer
// that matches it.
func SimilarityScores(candidate JoinRecord, peers []JoinRecord) (name, avatar int) {
	for _, peer := range peers {
		if peer.IdentityID == candidate.IdentityID {
			continue
		}
		if name == 0 && Similarity(candidate.DisplayName, peer.DisplayName) > nameSimilarityLimit {
			name = weightSimilarName
		}
		if avatar == 0 && candidate.AvatarSignature != "" && candidate.AvatarSignature == peer.AvatarSignature {
			avatar = weightDuplicateAvatar
		}
		if name != 0 && avatar != 0 {
			break
		}
	}
	return name, avatar
}

// Similarity is (longest - editDistance) / longest over runes, 0 when either
// string is empty.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	distance := levenshtein.ComputeDistance(a, b)
	return float64(longest-distance) / float64(longest)
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
