package service

import (
	"regexp"
	"strconv"
	"strings"
)

// 평가 응답의 섹션 마커
// "User 1 Analysis:", "User 1 Rating Increment:", "User 2 Analysis:", "User 2 Rating Increment:"
// 대소문자, 공백, 마크다운 강조(**)는 허용한다.
var (
	evaluationMarker = regexp.MustCompile(`(?i)user\s*([12])\s*(analysis|rating\s*increment)\s*\**\s*:`)
	leadingInteger   = regexp.MustCompile(`^[+-]?\d+`)
)

// ParsedEvaluation 평가 응답에서 추출한 참가자별 결과 (인덱스 0 = User 1)
type ParsedEvaluation struct {
	Analyses   [2]string
	Increments [2]int
}

// ParseEvaluation 평가 응답 파싱
// 마커가 없거나 정수가 아닌 증가분은 0, 없는 분석은 빈 문자열이 된다.
func ParseEvaluation(raw string) ParsedEvaluation {
	var parsed ParsedEvaluation
	var seenAnalysis, seenIncrement [2]bool

	matches := evaluationMarker.FindAllStringSubmatchIndex(raw, -1)
	for i, m := range matches {
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		section := trimSection(raw[m[1]:end])

		user := 0
		if raw[m[2]:m[3]] == "2" {
			user = 1
		}

		label := strings.ToLower(raw[m[4]:m[5]])
		if strings.HasPrefix(label, "analysis") {
			if !seenAnalysis[user] {
				parsed.Analyses[user] = section
				seenAnalysis[user] = true
			}
			continue
		}

		if !seenIncrement[user] {
			parsed.Increments[user] = parseIncrement(section)
			seenIncrement[user] = true
		}
	}

	return parsed
}

func trimSection(s string) string {
	return strings.Trim(s, " \t\r\n*")
}

func parseIncrement(section string) int {
	digits := leadingInteger.FindString(section)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
