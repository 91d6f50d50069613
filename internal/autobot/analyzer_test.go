package autobot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindPosition(t *testing.T) {
	oneRow := ParseKeyboard(kb([]string{"a", "b"}))
	twoRows := ParseKeyboard(kb([]string{"a", "b"}, []string{"c"}))

	// (1,0) на одной строке — «не нашлось», не паника
	_, ok := FindPosition(oneRow, 1, 0)
	require.False(t, ok)

	b, ok := FindPosition(twoRows, 1, 0)
	require.True(t, ok)
	require.Equal(t, "c", b.Text)
}

func TestFindFirst(t *testing.T) {
	_, ok := FindFirst(nil)
	require.False(t, ok)

	b, ok := FindFirst(ParseKeyboard(kb([]string{"x", "y"})))
	require.True(t, ok)
	require.Equal(t, "x", b.Text)

	// дырявая сетка: [0,0] пропал — берём первую по row-major
	holey := []Button{{Text: "z", Row: 0, Col: 2}}
	b, ok = FindFirst(holey)
	require.True(t, ok)
	require.Equal(t, "z", b.Text)
}

func TestFindExactText(t *testing.T) {
	buttons := ParseKeyboard(kb([]string{"Подтвердить", "Отмена"}))

	b, ok := FindExactText(buttons, "подтвердить", false)
	require.True(t, ok)
	require.Equal(t, "Подтвердить", b.Text)

	_, ok = FindExactText(buttons, "подтвердить", true)
	require.False(t, ok)

	_, ok = FindExactText(buttons, "Подтвер", false) // не подстрока
	require.False(t, ok)
}

func TestFindAnyOfKeywordPriority(t *testing.T) {
	buttons := ParseKeyboard(kb(
		[]string{"Назад"},
		[]string{"Взять и забронировать"},
	))

	// первое слово мимо, второе матчится подстрокой
	b, ok := FindAnyOf(buttons, []string{"подтвердить", "забронировать"})
	require.True(t, ok)
	require.Equal(t, "Взять и забронировать", b.Text)

	// порядок слов — приоритет вызывающего, не row-major по всему набору
	grid := ParseKeyboard(kb([]string{"беру"}, []string{"подтвердить"}))
	b, ok = FindAnyOf(grid, []string{"подтвердить", "беру"})
	require.True(t, ok)
	require.Equal(t, "подтвердить", b.Text)

	_, ok = FindAnyOf(buttons, []string{"нет такого"})
	require.False(t, ok)
	_, ok = FindAnyOf(buttons, nil)
	require.False(t, ok)
}

func TestFindByIndex(t *testing.T) {
	buttons := ParseKeyboard(kb([]string{"a", "b"}, []string{"c"}))

	b, ok := FindByIndex(buttons, 2)
	require.True(t, ok)
	require.Equal(t, "c", b.Text)

	_, ok = FindByIndex(buttons, 5)
	require.False(t, ok)
	_, ok = FindByIndex(buttons, -1)
	require.False(t, ok)
}
