package langtag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyze_EnglishText(t *testing.T) {
	tg := New()
	res, err := tg.Analyze(context.Background(), "The quick brown fox jumps over the lazy dog.")
	require.NoError(t, err)
	require.Equal(t, "en", res.PrimaryLanguage)
	require.False(t, res.IsMultilingual)
	require.Contains(t, res.Languages, "en")
}

func TestAnalyze_ChineseText(t *testing.T) {
	tg := New()
	res, err := tg.Analyze(context.Background(), "这是一个测试文档用于语言检测")
	require.NoError(t, err)
	require.Equal(t, "zh", res.PrimaryLanguage)
}

func TestAnalyze_MixedScriptsReportsMultilingual(t *testing.T) {
	tg := New()
	res, err := tg.Analyze(context.Background(), "Hello world, 这是中文, and more English text here")
	require.NoError(t, err)
	require.True(t, res.IsMultilingual)
	require.Contains(t, res.Languages, "en")
	require.Contains(t, res.Languages, "zh")
}

func TestAnalyze_EmptyText_ReturnsUndetermined(t *testing.T) {
	tg := New()
	res, err := tg.Analyze(context.Background(), "   123 !!!  ")
	require.NoError(t, err)
	require.Equal(t, "und", res.PrimaryLanguage)
}

func TestAnalyze_DistributionSumsToOne(t *testing.T) {
	tg := New()
	res, err := tg.Analyze(context.Background(), "only english words here")
	require.NoError(t, err)
	var sum float64
	for _, v := range res.Distribution {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 0.0001)
}
