package autobot

import (
	"sort"
	"strings"
)

// Поиск по кнопкам одного снапшота. Все функции чистые, обходят сетку
// в row-major порядке и возвращают первую подходящую кнопку; «не
// нашлось» — это ok=false, не ошибка: отсутствие кнопки на нужной
// позиции — штатная ситуация при гонке с редактированием.

// FindPosition — точный адрес в сетке.
func FindPosition(buttons []Button, row, col int) (Button, bool) {
	for _, b := range buttons {
		if b.Row == row && b.Col == col {
			return b, true
		}
	}
	return Button{}, false
}

// FindFirst — кнопка [0,0]; если её нет (дырявая сетка) — первая по
// row-major порядку.
func FindFirst(buttons []Button) (Button, bool) {
	if b, ok := FindPosition(buttons, 0, 0); ok {
		return b, true
	}
	if len(buttons) == 0 {
		return Button{}, false
	}
	return buttons[0], true
}

// FindExactText — точное совпадение текста; caseSensitive — из конфига.
func FindExactText(buttons []Button, text string, caseSensitive bool) (Button, bool) {
	want := text
	if !caseSensitive {
		want = strings.ToLower(text)
	}
	for _, b := range buttons {
		got := b.Text
		if !caseSensitive {
			got = strings.ToLower(got)
		}
		if got == want {
			return b, true
		}
	}
	return Button{}, false
}

// FindContains — подстрока без учёта регистра.
func FindContains(buttons []Button, keyword string) (Button, bool) {
	kw := strings.ToLower(keyword)
	for _, b := range buttons {
		if strings.Contains(strings.ToLower(b.Text), kw) {
			return b, true
		}
	}
	return Button{}, false
}

// FindAnyOf — первая кнопка, текст которой содержит любое из ключевых
// слов. Слова пробуются в порядке приоритета вызывающего; внутри
// одного слова — row-major.
func FindAnyOf(buttons []Button, keywords []string) (Button, bool) {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if b, ok := FindContains(buttons, kw); ok {
			return b, true
		}
	}
	return Button{}, false
}

// FindByIndex — n-я кнопка в порядке (row, col). Используется шагом
// выбора записи из списка: если поиск по ключевым словам промахнулся,
// вызывающий откатывается на отсортированный индекс.
func FindByIndex(buttons []Button, idx int) (Button, bool) {
	if idx < 0 || idx >= len(buttons) {
		return Button{}, false
	}
	sorted := make([]Button, len(buttons))
	copy(sorted, buttons)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Col < sorted[j].Col
	})
	return sorted[idx], true
}
