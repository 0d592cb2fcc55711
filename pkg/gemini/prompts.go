package gemini

import (
	"fmt"
	"strings"
)

// QuestionPrompt 평균 레이팅에 맞는 문제 한 개를 HTML로 요청
func QuestionPrompt(averageRating float64) string {
	return fmt.Sprintf(`Generate one competitive programming or DSA problem similar to Codeforces/LeetCode, suitable for players with an average rating of %d.
Include a title, the problem statement, input and output format, constraints and exactly 2 sample test cases with expected output.
Respond with an HTML fragment only (use <h1>, <p>, <pre> and <ul>), without markdown or code fences.`,
		int(averageRating+0.5))
}

// EvaluationPrompt 두 제출 코드를 비교 평가. 응답은 네 개의 마커로 구분된다.
func EvaluationPrompt(question, codeA, codeB string) string {
	var b strings.Builder

	b.WriteString("You are judging a two player coding battle. Both players solved the problem below.\n")
	b.WriteString("Evaluate correctness, time and space complexity and code quality of each submission.\n\n")

	b.WriteString("Problem:\n")
	b.WriteString(question)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "User 1 code:\n%s\n\n", fence(codeA))
	fmt.Fprintf(&b, "User 2 code:\n%s\n\n", fence(codeB))

	b.WriteString("Reply in exactly this format, with a rating increment as a whole number between 0 and 30:\n")
	b.WriteString("User 1 Analysis: <short analysis>\n")
	b.WriteString("User 1 Rating Increment: <integer>\n")
	b.WriteString("User 2 Analysis: <short analysis>\n")
	b.WriteString("User 2 Rating Increment: <integer>\n")

	return b.String()
}

func fence(code string) string {
	if strings.TrimSpace(code) == "" {
		return "(no code submitted)"
	}
	return "```\n" + code + "\n```"
}
