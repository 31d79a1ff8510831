package transform

import "regexp"

// Set bundles transformers the way the recorded suites declare them:
// one preset per API family plus a common AWS set.
type Set struct {
	Tree []Transformer
	Raw  []RawTransformer
}

var (
	uuidPattern = regexp.MustCompile(
		`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

	// ISO-8601 and RFC-1123 date strings, quotes included so the whole
	// JSON string value collapses to the bare timestamp marker.
	isoTimestampPattern = regexp.MustCompile(
		`"\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?"`)
	httpDatePattern = regexp.MustCompile(
		`"(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun), \d{2} [A-Z][a-z]{2} \d{4} \d{2}:\d{2}:\d{2} GMT"`)

	amzRequestIDKeys = []string{"RequestId", "x-amzn-requestid", "x-amz-request-id"}
)

// Common normalizes the values every AWS-shaped response leaks: the
// account ID and region of the run target, random UUIDs, request IDs
// and dates. region and accountID may be empty when unknown.
func Common(region, accountID string) Set {
	s := Set{}
	for _, key := range amzRequestIDKeys {
		s.Tree = append(s.Tree, KeyValue{Key: key, Name: "request-id"})
	}
	s.Tree = append(s.Tree,
		KeyValue{Key: "date", Name: "date"},
		KeyValue{Key: "Date", Name: "date"},
	)
	if accountID != "" {
		s.Raw = append(s.Raw, Regex{
			Pattern:     regexp.MustCompile(regexp.QuoteMeta(accountID)),
			Replacement: "<account-id>",
		})
	}
	if region != "" {
		s.Raw = append(s.Raw, Regex{
			Pattern:     regexp.MustCompile(regexp.QuoteMeta(region)),
			Replacement: "<region>",
		})
	}
	s.Raw = append(s.Raw,
		Regex{Pattern: isoTimestampPattern, Replacement: `"timestamp"`},
		Regex{Pattern: httpDatePattern, Replacement: `"timestamp"`},
		Regex{Pattern: uuidPattern, Name: "uuid", Reference: true},
	)
	return s
}

// STS normalizes credential material in assume-role and
// get-caller-identity responses.
func STS() Set {
	return Set{
		Tree: []Transformer{
			KeyValue{Key: "AccessKeyId", Name: "access-key-id", Reference: true},
			KeyValue{Key: "SecretAccessKey", Name: "secret-access-key"},
			KeyValue{Key: "SessionToken", Name: "session-token"},
			KeyValue{Key: "AssumedRoleId", Name: "assumed-role-id", Reference: true},
			KeyValue{Key: "UserId", Name: "user-id", Reference: true},
			KeyValue{Key: "Expiration", Name: "expiration"},
		},
	}
}

// APIGateway normalizes the generated identifiers in REST API
// resources.
func APIGateway() Set {
	return Set{
		Tree: []Transformer{
			KeyValue{Key: "id", Name: "id", Reference: true},
			KeyValue{Key: "rootResourceId", Name: "root-resource-id", Reference: true},
			KeyValue{Key: "parentId", Name: "parent-id", Reference: true},
			KeyValue{Key: "deploymentId", Name: "deployment-id", Reference: true},
			KeyValue{Key: "createdDate", Name: "created-date"},
		},
	}
}

// PresetByName resolves a preset referenced from a suite definition.
func PresetByName(name, region, accountID string) (Set, bool) {
	switch name {
	case "common":
		return Common(region, accountID), true
	case "sts":
		return STS(), true
	case "apigateway":
		return APIGateway(), true
	default:
		return Set{}, false
	}
}
