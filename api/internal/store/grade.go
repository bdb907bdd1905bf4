package store

import (
	"regexp"
	"strings"
)

// gradeKeys lists the canonical grade names with the spellings users and
// older rows use for them. Detection runs top to bottom.
var gradeKeys = []struct {
	key     string
	detect  []string
	aliases []string
}{
	{"七年级", []string{"七年级", "初一"}, []string{"七年级", "初一", "7年级", "七"}},
	{"八年级", []string{"八年级", "初二"}, []string{"八年级", "初二", "8年级", "八"}},
	{"九年级", []string{"九年级", "初三"}, []string{"九年级", "初三", "9年级", "九"}},
	{"高一", []string{"高一"}, []string{"高一", "10年级"}},
	{"高二", []string{"高二"}, []string{"高二", "11年级"}},
	{"高三", []string{"高三"}, []string{"高三", "12年级"}},
}

var gradePrefixRe = regexp.MustCompile(`^(.+?)[上下]`)

func detectGrade(gs string) (key string, aliases []string) {
	for _, g := range gradeKeys {
		for _, d := range g.detect {
			if strings.Contains(gs, d) {
				return g.key, g.aliases
			}
		}
	}
	return "", nil
}

func detectSemester(gs string) string {
	switch {
	case strings.Contains(gs, "上"):
		return "上"
	case strings.Contains(gs, "下"):
		return "下"
	}
	return ""
}

// gradeFilter builds the where clause matching a grade/semester filter against
// every alias and separator style stored rows may use.
func gradeFilter(gs string) (string, []any) {
	contains := func(s string) any { return "%" + s + "%" }

	_, grades := detectGrade(gs)
	if grades == nil {
		m := gradePrefixRe.FindStringSubmatch(gs)
		if m == nil {
			return `grade_semester like ?`, []any{contains(gs)}
		}
		grades = []string{m[1]}
	}
	sem := detectSemester(gs)

	var patterns []any
	for _, g := range grades {
		if sem == "" {
			patterns = append(patterns, contains(g))
			continue
		}
		term := sem + "期"
		patterns = append(patterns,
			contains(g+sem),
			contains(g+"，"+sem),
			contains(g+","+sem),
			contains(g+" "+sem),
			contains(g+"，"+term),
		)
	}
	ors := make([]string, len(patterns))
	for i := range patterns {
		ors[i] = `grade_semester like ?`
	}
	return "(" + strings.Join(ors, " or ") + ")", patterns
}

// GradeNode names the system tag that owner tags for this grade hang under,
// e.g. "初一，上期" -> "七年级上". Unknown grades have no node.
func GradeNode(gs string) string {
	key, _ := detectGrade(gs)
	sem := detectSemester(gs)
	if key == "" || sem == "" {
		return ""
	}
	return key + sem
}

// GradeNodes lists every grade node, in school order.
func GradeNodes() []string {
	out := make([]string, 0, len(gradeKeys)*2)
	for _, g := range gradeKeys {
		out = append(out, g.key+"上", g.key+"下")
	}
	return out
}
