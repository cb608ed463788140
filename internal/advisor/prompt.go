// Package advisor はPC構成提案の生成を提供する。
// OpenAI互換エンドポイント（Groq等）への問い合わせと履歴レコードの追記を含む。
package advisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/buildman/internal/model"
)

// useCaseLabels は用途区分から日本語表示名への対応表。
var useCaseLabels = map[model.UseCase]string{
	model.UseCaseGames:   "ゲーム",
	model.UseCaseEditing: "動画編集",
	model.UseCaseWork:    "仕事",
	model.UseCaseStudy:   "学習",
}

// monthsPT はプロンプトの時期コンテキストに使うポルトガル語の月名。
// 対象市場がブラジルのためプロンプト自体はポルトガル語圏の表現に合わせる。
var monthsPT = []string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// BuildPrompt は予算と用途から構成提案のプロンプトを組み立てる。
// 予算帯ごとの戦略（GPU搭載/APU構成/超低予算）をプロンプト内の規則として指示する。
func BuildPrompt(budget string, useCase model.UseCase, now time.Time) string {
	period := fmt.Sprintf("%s de %d", monthsPT[int(now.Month())-1], now.Year())

	var b strings.Builder
	b.WriteString("Atue como um especialista em hardware de PC no Brasil. ")
	b.WriteString("Monte o melhor setup possível, maximizando a performance para o uso principal dentro do orçamento.\n\n")
	fmt.Fprintf(&b, "ORÇAMENTO MÁXIMO (LIMITE RÍGIDO): R$%s\n", budget)
	fmt.Fprintf(&b, "Uso principal: %s\n", useCase)
	fmt.Fprintf(&b, "Período de referência: %s\n", period)
	b.WriteString("Peças a incluir: Processador, Placa Mãe, Memória RAM, Armazenamento (SSD), Fonte, Gabinete e Placa de Vídeo (se o orçamento permitir).\n")
	b.WriteString("Lojas de referência: Kabum, Pichau, TerabyteShop.\n\n")
	b.WriteString("REGRAS:\n")
	b.WriteString("1. Orçamento acima de R$3.500: inclua uma placa de vídeo dedicada.\n")
	b.WriteString("2. Orçamento entre R$2.000 e R$3.500: monte um setup com APU (ex: Ryzen 5 5600G); ")
	b.WriteString("se a soma real ultrapassar o orçamento, simplifique as outras peças.\n")
	b.WriteString("3. Orçamento abaixo de R$2.000: é impossível montar um setup novo em lojas nacionais; ")
	b.WriteString("sugira peças do AliExpress e avise sobre prazos e riscos.\n")
	b.WriteString("4. A soma dos preços não pode ultrapassar o limite. Liste cada peça com preço estimado e o total.\n")
	b.WriteString("5. Responda apenas com texto puro, sem HTML nem markdown.\n")

	return b.String()
}

// UseCaseLabel は用途区分の日本語表示名を返す。未知の値はそのまま返す。
func UseCaseLabel(useCase model.UseCase) string {
	if label, ok := useCaseLabels[useCase]; ok {
		return label
	}
	return string(useCase)
}
