package openapi

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/codalotl/skilleval/internal/rules"
	"github.com/codalotl/skilleval/internal/types"
)

var (
	allMethods  = []string{"get", "post", "put", "patch", "delete", "options", "head", "trace"}
	crudMethods = []string{"get", "post", "put", "patch", "delete"}

	versionSegment = regexp.MustCompile(`^v\d+$`)
	camelCase      = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)
)

var singularNouns = map[string]bool{
	"user": true, "product": true, "order": true, "merchant": true, "payment": true,
	"refund": true, "webhook": true, "item": true, "category": true, "customer": true,
	"account": true, "transaction": true, "invoice": true, "event": true,
	"report": true, "log": true, "message": true, "comment": true, "tag": true,
	"role": true, "permission": true, "booking": true, "subscription": true,
	"review": true, "file": true, "session": true, "notification": true,
	"setting": true, "address": true, "delivery": true,
}

var pathVerbs = []string{
	"get", "create", "delete", "update", "fetch", "remove",
	"add", "list", "search", "find", "retrieve", "modify",
	"put", "post", "patch",
}

var (
	problemFields   = []string{"type", "title", "status", "detail"}
	rateLimitHeader = []string{"x-ratelimit-limit", "x-ratelimit-remaining", "x-ratelimit-reset"}
)

const (
	schemaRefPrefix    = "#/components/schemas/"
	responseRefPrefix  = "#/components/responses/"
	parameterRefPrefix = "#/components/parameters/"
)

// Rules is the OpenAPI rule battery. Every rule is scored.
var Rules = rules.RuleSet[*Object]{Rules: []rules.Rule[*Object]{
	{Name: "rule_1_plural_nouns", Check: checkPluralNouns},
	{Name: "rule_2_kebab_case", Check: checkKebabCase},
	{Name: "rule_3_no_verbs", Check: checkNoVerbs},
	{Name: "rule_4_operation_id", Check: checkOperationID},
	{Name: "rule_5_description", Check: checkDescription},
	{Name: "rule_6_camel_case", Check: checkCamelCase},
	{Name: "rule_7_contact", Check: checkContact},
	{Name: "rule_8_rfc7807", Check: checkRFC7807},
	{Name: "rule_9_cursor_pagination", Check: checkCursorPagination},
	{Name: "rule_10_rate_limit_headers", Check: checkRateLimitHeaders},
	{Name: "rule_11_idempotency_key", Check: checkIdempotencyKey},
	{Name: "rule_12_examples", Check: checkExamples},
	{Name: "rule_13_security_scheme", Check: checkSecurityScheme},
	{Name: "rule_14_security_applied", Check: checkSecurityApplied},
}}

// Outcomes check that the task's expected paths and schemas exist and that async work answers 202.
var Outcomes = rules.RuleSet[*Object]{Rules: []rules.Rule[*Object]{
	{Name: "outcome_paths_present", Check: outcomePathsPresent},
	{Name: "outcome_schemas_present", Check: outcomeSchemasPresent},
	{Name: "outcome_async_202", Check: outcomeAsync202},
}}

type operation struct {
	Method string
	Path   string
	Op     *Object
}

func (o operation) label() string {
	return strings.ToUpper(o.Method) + " " + o.Path
}

func pathNames(spec *Object) []string {
	return spec.Obj("paths").Keys()
}

func operations(spec *Object, methods []string) []operation {
	paths := spec.Obj("paths")
	var ops []operation
	for _, p := range paths.Keys() {
		item := paths.Obj(p)
		if item == nil {
			continue
		}
		for _, m := range methods {
			if op := item.Obj(m); op != nil {
				ops = append(ops, operation{Method: m, Path: p, Op: op})
			}
		}
	}
	return ops
}

// segments returns the literal segments of path, without parameters.
func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" && !strings.HasPrefix(s, "{") {
			out = append(out, s)
		}
	}
	return out
}

func schemas(spec *Object) *Object {
	return spec.Obj("components").Obj("schemas")
}

// resolveSchema follows a #/components/schemas/ reference. Non-reference schemas are returned unchanged; unresolvable
// references yield nil.
func resolveSchema(spec *Object, v any) any {
	schema, ok := v.(*Object)
	if !ok {
		return v
	}
	ref := schema.Str("$ref")
	if ref == "" {
		return schema
	}
	if name, ok := strings.CutPrefix(ref, schemaRefPrefix); ok {
		if resolved := schemas(spec).Get(name); resolved != nil {
			return resolved
		}
	}
	return nil
}

func resolveParam(spec *Object, param *Object) *Object {
	ref := param.Str("$ref")
	if name, ok := strings.CutPrefix(ref, parameterRefPrefix); ok {
		if resolved := spec.Obj("components").Obj("parameters").Obj(name); resolved != nil {
			return resolved
		}
	}
	return param
}

// walkSchemaProps calls fn for each schema's properties object, descending into allOf, oneOf and anyOf members and
// following their schema references.
func walkSchemaProps(spec *Object, schema *Object, depth int, fn func(props *Object)) {
	if schema == nil || depth > maxDepth {
		return
	}
	if props := schema.Obj("properties"); props != nil {
		fn(props)
	}
	for _, combo := range []string{"allOf", "oneOf", "anyOf"} {
		for _, item := range schema.List(combo) {
			member, ok := item.(*Object)
			if !ok {
				continue
			}
			if resolved, ok := resolveSchema(spec, member).(*Object); ok {
				member = resolved
			}
			walkSchemaProps(spec, member, depth+1, fn)
		}
	}
}

func eachSchemaProps(spec *Object, fn func(props *Object)) {
	all := schemas(spec)
	for _, name := range all.Keys() {
		walkSchemaProps(spec, all.Obj(name), 0, fn)
	}
}

func checkPluralNouns(spec *Object, _ types.Task) rules.Verdict {
	paths := pathNames(spec)
	if len(paths) == 0 {
		return rules.Failf("no paths defined")
	}
	var flags []string
	for _, p := range paths {
		for _, seg := range segments(p) {
			if versionSegment.MatchString(seg) {
				continue
			}
			if singularNouns[strings.ToLower(seg)] {
				flags = append(flags, fmt.Sprintf("'%s' in %s should be plural", seg, p))
			}
		}
	}
	if len(flags) > 0 {
		return rules.Failf("%s", strings.Join(rules.Head(flags, 3), "; "))
	}
	return rules.Passf("ok")
}

func checkKebabCase(spec *Object, _ types.Task) rules.Verdict {
	paths := pathNames(spec)
	if len(paths) == 0 {
		return rules.Failf("no paths defined")
	}
	var violations []string
	for _, p := range paths {
		for _, seg := range segments(p) {
			if versionSegment.MatchString(seg) {
				continue
			}
			if seg != strings.ToLower(seg) {
				violations = append(violations, fmt.Sprintf("'%s' has uppercase in %s", seg, p))
			}
			if strings.Contains(seg, "_") {
				violations = append(violations, fmt.Sprintf("'%s' has underscore in %s", seg, p))
			}
		}
	}
	if len(violations) > 0 {
		return rules.Failf("%s", strings.Join(rules.Head(violations, 3), "; "))
	}
	return rules.Passf("ok")
}

func checkNoVerbs(spec *Object, _ types.Task) rules.Verdict {
	paths := pathNames(spec)
	if len(paths) == 0 {
		return rules.Failf("no paths defined")
	}
	var violations []string
	for _, p := range paths {
		for _, seg := range segments(p) {
			if v := verbIn(seg); v != "" {
				if strings.EqualFold(seg, v) {
					violations = append(violations, fmt.Sprintf("verb '%s' in %s", seg, p))
				} else {
					violations = append(violations, fmt.Sprintf("verb prefix '%s' in '%s' in %s", v, seg, p))
				}
			}
		}
	}
	if len(violations) > 0 {
		return rules.Failf("%s", strings.Join(rules.Head(violations, 3), "; "))
	}
	return rules.Passf("ok")
}

// verbIn returns the verb seg is, or the verb it starts with in camelCase (getUsers), or "".
func verbIn(seg string) string {
	lower := strings.ToLower(seg)
	for _, v := range pathVerbs {
		if lower == v {
			return v
		}
	}
	for _, v := range pathVerbs {
		if len(seg) > len(v) && strings.HasPrefix(lower, v) && unicode.IsUpper(rune(seg[len(v)])) {
			return v
		}
	}
	return ""
}

func checkOperationID(spec *Object, _ types.Task) rules.Verdict {
	ops := operations(spec, allMethods)
	if len(ops) == 0 {
		return rules.Failf("no operations found")
	}
	var missing []string
	for _, o := range ops {
		if !truthy(o.Op.Get("operationId")) {
			missing = append(missing, o.label())
		}
	}
	if len(missing) > 0 {
		return rules.Failf("missing operationId on: %s", strings.Join(rules.Head(missing, 3), ", "))
	}
	return rules.Passf("ok (%d operations)", len(ops))
}

func checkDescription(spec *Object, _ types.Task) rules.Verdict {
	ops := operations(spec, allMethods)
	if len(ops) == 0 {
		return rules.Failf("no operations found")
	}
	var missing []string
	for _, o := range ops {
		if strings.TrimSpace(o.Op.Str("description")) != "" || strings.TrimSpace(o.Op.Str("summary")) != "" {
			continue
		}
		label := o.Op.Str("operationId")
		if label == "" {
			label = o.label()
		}
		missing = append(missing, label)
	}
	if len(missing) > 0 {
		return rules.Failf("missing description/summary on: %s", strings.Join(rules.Head(missing, 3), ", "))
	}
	return rules.Passf("ok (%d operations)", len(ops))
}

func checkCamelCase(spec *Object, _ types.Task) rules.Verdict {
	var names []string
	eachSchemaProps(spec, func(props *Object) {
		names = append(names, props.Keys()...)
	})
	if len(names) == 0 {
		return rules.Passf("needs_review (no schemas with properties)")
	}

	seen := map[string]bool{}
	var violations []string
	for _, n := range names {
		if !camelCase.MatchString(n) && !seen[n] {
			seen[n] = true
			violations = append(violations, n)
		}
	}
	sort.Strings(violations)
	if len(violations) > 0 {
		return rules.Failf("non-camelCase: %s", strings.Join(rules.Head(violations, 5), ", "))
	}
	return rules.Passf("ok (%d properties checked)", len(names))
}

func checkContact(spec *Object, _ types.Task) rules.Verdict {
	info, ok := spec.ObjOrEmpty("info")
	if !ok {
		return rules.Failf("info is not an object")
	}
	contact, ok := info.ObjOrEmpty("contact")
	if !ok {
		return rules.Failf("info.contact missing")
	}
	if !truthy(contact.Get("email")) && !truthy(contact.Get("url")) {
		return rules.Failf("info.contact has no email or url")
	}
	return rules.Passf("ok")
}

func isErrorStatus(code string) bool {
	return code == "default" || (len(code) == 3 && (code[0] == '4' || code[0] == '5'))
}

func isSuccessStatus(code string) bool {
	return len(code) == 3 && code[0] == '2'
}

// mediaSchemas returns the schema of every media type in a response's content.
func mediaSchemas(response *Object) []any {
	content := response.Obj("content")
	var out []any
	for _, mt := range content.Keys() {
		media := content.Obj(mt)
		if media == nil {
			continue
		}
		if schema := media.Get("schema"); schema != nil {
			out = append(out, schema)
		}
	}
	return out
}

func checkRFC7807(spec *Object, _ types.Task) rules.Verdict {
	if _, ok := spec.ObjOrEmpty("paths"); !ok {
		return rules.Failf("no paths")
	}
	found, compliant := 0, 0
	for _, o := range operations(spec, crudMethods) {
		responses := o.Op.Obj("responses")
		for _, code := range responses.Keys() {
			response := responses.Obj(code)
			if !isErrorStatus(code) || response == nil {
				continue
			}
			if response.Has("$ref") {
				name, ok := strings.CutPrefix(response.Str("$ref"), responseRefPrefix)
				target := spec.Obj("components").Obj("responses")
				if !ok || !target.Has(name) {
					found++
					continue
				}
				if response = target.Obj(name); response == nil {
					continue
				}
			}
			for _, schema := range mediaSchemas(response) {
				found++
				resolved, ok := resolveSchema(spec, schema).(*Object)
				if !ok {
					continue
				}
				if props := resolved.Obj("properties"); props != nil && hasAll(props, problemFields) {
					compliant++
				}
			}
		}
	}
	if found == 0 {
		return rules.Failf("no error response schemas found")
	}
	if compliant == 0 {
		return rules.Failf("0/%d error schemas have type+title+status+detail", found)
	}
	return rules.Passf("%d/%d error schemas are RFC 7807 compliant", compliant, found)
}

func hasAll(obj *Object, keys []string) bool {
	for _, k := range keys {
		if !obj.Has(k) {
			return false
		}
	}
	return true
}

func checkCursorPagination(spec *Object, task types.Task) rules.Verdict {
	if !task.Bool("requires_pagination") {
		return rules.Passf("n/a (pagination not required)")
	}
	if _, ok := spec.ObjOrEmpty("paths"); !ok {
		return rules.Failf("no paths")
	}

	found, compliant := 0, 0
	for _, o := range operations(spec, []string{"get"}) {
		// A GET on /things/{id} is a single resource.
		if segs := strings.Split(strings.TrimRight(o.Path, "/"), "/"); strings.HasPrefix(segs[len(segs)-1], "{") {
			continue
		}
		responses := o.Op.Obj("responses")
		success := responses.Obj("200")
		if !truthy(success) {
			success = responses.Obj("201")
		}
		if success == nil {
			continue
		}
		for _, schema := range mediaSchemas(success) {
			resolved, ok := resolveSchema(spec, schema).(*Object)
			if !ok {
				continue
			}
			props, ok := resolved.ObjOrEmpty("properties")
			if !ok {
				if resolved.Str("type") == "array" {
					found++
				}
				continue
			}
			found++
			if cursorEnvelope(props) {
				compliant++
			}
		}
	}
	if found == 0 {
		return rules.Passf("no list endpoints found")
	}
	if compliant == 0 {
		return rules.Failf("0/%d list endpoints have cursor pagination (data+nextCursor+hasMore)", found)
	}
	return rules.Passf("%d/%d list endpoints have cursor pagination", compliant, found)
}

// cursorEnvelope reports whether props describe {data: [], nextCursor, hasMore}.
func cursorEnvelope(props *Object) bool {
	var data, cursor, more bool
	for _, name := range props.Keys() {
		prop := props.Obj(name)
		if prop == nil {
			continue
		}
		typ, typed := prop.Lookup("type")
		switch strings.ToLower(name) {
		case "data":
			data = data || typ == "array"
		case "nextcursor", "next_cursor", "cursor":
			cursor = cursor || typ == "string" || !typed || typ == nil
		case "hasmore", "has_more":
			more = more || typ == "boolean" || !typed || typ == nil
		}
	}
	return data && cursor && more
}

func checkRateLimitHeaders(spec *Object, _ types.Task) rules.Verdict {
	if _, ok := spec.ObjOrEmpty("paths"); !ok {
		return rules.Failf("no paths")
	}
	found, compliant := 0, 0
	for _, o := range operations(spec, crudMethods) {
		responses := o.Op.Obj("responses")
		for _, code := range responses.Keys() {
			response := responses.Obj(code)
			if !isSuccessStatus(code) || response == nil {
				continue
			}
			found++
			headers, ok := response.ObjOrEmpty("headers")
			if !ok {
				continue
			}
			names := map[string]bool{}
			for _, h := range headers.Keys() {
				names[strings.ToLower(h)] = true
			}
			all := true
			for _, h := range rateLimitHeader {
				all = all && names[h]
			}
			if all {
				compliant++
			}
		}
	}
	if found == 0 {
		return rules.Failf("no success (2xx) responses found")
	}
	if compliant < found {
		return rules.Failf("%d/%d success responses have rate-limit headers", compliant, found)
	}
	return rules.Passf("%d/%d success responses have rate-limit headers", compliant, found)
}

func checkIdempotencyKey(spec *Object, _ types.Task) rules.Verdict {
	paths, ok := spec.ObjOrEmpty("paths")
	if !ok {
		return rules.Failf("no paths")
	}
	total, compliant := 0, 0
	for _, p := range paths.Keys() {
		item := paths.Obj(p)
		if item == nil {
			continue
		}
		for _, m := range []string{"post", "put"} {
			op := item.Obj(m)
			if op == nil {
				continue
			}
			total++
			params := append(append([]any{}, item.List("parameters")...), op.List("parameters")...)
			if hasIdempotencyHeader(spec, params) {
				compliant++
			}
		}
	}
	if total == 0 {
		return rules.Passf("n/a (no POST/PUT operations)")
	}
	if compliant == 0 {
		return rules.Failf("0/%d POST/PUT operations have Idempotency-Key header", total)
	}
	return rules.Passf("%d/%d POST/PUT operations have Idempotency-Key header", compliant, total)
}

func hasIdempotencyHeader(spec *Object, params []any) bool {
	for _, item := range params {
		param, ok := item.(*Object)
		if !ok {
			continue
		}
		param = resolveParam(spec, param)
		if param.Str("in") == "header" && strings.EqualFold(param.Str("name"), "idempotency-key") {
			return true
		}
	}
	return false
}

func checkExamples(spec *Object, _ types.Task) rules.Verdict {
	total, withExample := 0, 0
	eachSchemaProps(spec, func(props *Object) {
		for _, name := range props.Keys() {
			total++
			if props.Obj(name).Has("example") {
				withExample++
			}
		}
	})
	if total == 0 {
		return rules.Passf("no properties found")
	}
	ratio := float64(withExample) / float64(total)
	if ratio < 0.80 {
		return rules.Failf("%d/%d (%.0f%%) have examples (need >= 80%%)", withExample, total, ratio*100)
	}
	return rules.Passf("%d/%d (%.0f%%) have examples", withExample, total, ratio*100)
}

func requiresAuth(task types.Task) bool {
	return task.Bool("requires_auth") || task.Sub("requirements").Bool("auth")
}

func checkSecurityScheme(spec *Object, task types.Task) rules.Verdict {
	if !requiresAuth(task) {
		return rules.Passf("n/a (auth not required)")
	}
	components, ok := spec.ObjOrEmpty("components")
	if !ok {
		return rules.Failf("no components block (auth required)")
	}
	schemes := components.Obj("securitySchemes")
	if schemes.Len() == 0 {
		return rules.Failf("no securitySchemes defined (auth required)")
	}
	return rules.Passf("ok (%s)", strings.Join(schemes.Keys(), ", "))
}

func checkSecurityApplied(spec *Object, task types.Task) rules.Verdict {
	if !requiresAuth(task) {
		return rules.Passf("n/a (auth not required)")
	}
	// security: [] disables auth, so only a non-empty requirement counts.
	for _, req := range spec.List("security") {
		if obj, ok := req.(*Object); ok && obj.Len() > 0 {
			return rules.Passf("ok (global security)")
		}
	}
	ops := operations(spec, allMethods)
	secured := 0
	for _, o := range ops {
		if o.Op.Get("security") != nil {
			secured++
		}
	}
	if secured > 0 {
		return rules.Passf("ok (%d/%d ops have security)", secured, len(ops))
	}
	return rules.Failf("security not applied globally or per-operation")
}

func outcomePathsPresent(spec *Object, task types.Task) rules.Verdict {
	expected := task.Strings("expected_paths")
	if len(expected) == 0 {
		return rules.Passf("no expected paths in task")
	}
	paths := spec.Obj("paths")
	var missing []string
	for _, p := range expected {
		if !paths.Has(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return rules.Passf("all %d expected paths present", len(expected))
	}
	return rules.Failf("missing %d/%d paths: %s", len(missing), len(expected), rules.List(rules.Head(missing, 5)))
}

func outcomeSchemasPresent(spec *Object, task types.Task) rules.Verdict {
	expected := task.Strings("expected_schemas")
	if len(expected) == 0 {
		return rules.Passf("no expected schemas in task")
	}
	actual := map[string]bool{}
	for _, name := range schemas(spec).Keys() {
		actual[strings.ToLower(name)] = true
	}
	var missing []string
	for _, s := range expected {
		if !actual[strings.ToLower(s)] {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return rules.Passf("all %d expected schemas present", len(expected))
	}
	return rules.Failf("missing %d/%d schemas: %s", len(missing), len(expected), rules.List(missing))
}

func outcomeAsync202(spec *Object, task types.Task) rules.Verdict {
	if !task.Bool("has_async_operations") {
		return rules.Passf("n/a (no async operations required)")
	}
	paths := spec.Obj("paths")
	for _, p := range paths.Keys() {
		item := paths.Obj(p)
		for _, m := range item.Keys() {
			if op := item.Obj(m); strings.EqualFold(m, "post") && op.Obj("responses").Has("202") {
				return rules.Passf("202 Accepted response found on POST operation")
			}
		}
	}
	return rules.Failf("no 202 Accepted response found (async operations required)")
}
