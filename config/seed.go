package config

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/betareaderbr/betareader/models"
)

type seedBook struct {
	slug, title, author, category, difficulty string
	reward                                    int64
	premium                                   bool
	excerpt                                   string
	quiz                                      []models.QuizQuestion
}

var starterCatalog = []seedBook{
	{
		slug: "dom-casmurro", title: "Dom Casmurro", author: "Machado de Assis",
		category: "romance", difficulty: "medium", reward: 45,
		excerpt: "Uma noite destas, vindo da cidade para o Engenho Novo, encontrei no trem da Central um rapaz aqui do bairro...",
		quiz: []models.QuizQuestion{
			{Question: "Qual é o apelido do narrador?", Options: []string{"Casmurro", "Brás", "Rubião"}, Answer: 0},
			{Question: "Onde o narrador encontra o rapaz?", Options: []string{"Na igreja", "No trem", "Na escola"}, Answer: 1},
		},
	},
	{
		slug: "iracema", title: "Iracema", author: "José de Alencar",
		category: "romance", difficulty: "easy", reward: 38,
		excerpt: "Verdes mares bravios de minha terra natal, onde canta a jandaia nas frondes da carnaúba...",
		quiz: []models.QuizQuestion{
			{Question: "Que ave canta nas frondes da carnaúba?", Options: []string{"Sabiá", "Jandaia", "Arara"}, Answer: 1},
		},
	},
	{
		slug: "o-cortico", title: "O Cortiço", author: "Aluísio Azevedo",
		category: "naturalismo", difficulty: "hard", reward: 42,
		excerpt: "João Romão foi, dos treze aos vinte e cinco anos, empregado de um vendeiro que enriqueceu...",
		quiz: []models.QuizQuestion{
			{Question: "Quem é o dono do cortiço?", Options: []string{"Miranda", "Jerônimo", "João Romão"}, Answer: 2},
		},
	},
	{
		slug: "memorias-postumas", title: "Memórias Póstumas de Brás Cubas", author: "Machado de Assis",
		category: "romance", difficulty: "hard", reward: 60, premium: true,
		excerpt: "Ao verme que primeiro roeu as frias carnes do meu cadáver dedico como saudosa lembrança estas memórias póstumas.",
		quiz: []models.QuizQuestion{
			{Question: "A quem o livro é dedicado?", Options: []string{"Ao leitor", "Ao verme", "A Virgília"}, Answer: 1},
		},
	},
}

// SeedBooks inserts the starter catalog. Existing slugs are left untouched.
func SeedBooks(db *gorm.DB) error {
	books := make([]models.Book, 0, len(starterCatalog))
	for _, s := range starterCatalog {
		quiz, err := json.Marshal(s.quiz)
		if err != nil {
			return err
		}
		books = append(books, models.Book{
			Slug:       s.slug,
			Title:      s.title,
			Author:     s.author,
			Excerpt:    s.excerpt,
			Reward:     decimal.NewFromInt(s.reward),
			Difficulty: s.difficulty,
			Category:   s.category,
			Premium:    s.premium,
			Questions:  datatypes.JSON(quiz),
		})
	}
	return db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slug"}}, DoNothing: true}).Create(&books).Error
}
