package locale

// Key identifies a user-facing string.
type Key string

const (
	KeyBotDescr          Key = "bot-descr"
	KeyAskTitle          Key = "ask-title"
	KeyAskArtist         Key = "ask-artist"
	KeyExpectedText      Key = "expected-text"
	KeyExpectedAudio     Key = "expected-audio"
	KeyFinishCurrentEdit Key = "finish-current-edit"
	KeyProcessingFailed  Key = "processing-failed"
	KeyUnsupportedFormat Key = "unsupported-format"
	KeyTagFailed         Key = "tag-failed"
	KeyStorageFailed     Key = "storage-failed"
	KeySessionExpired    Key = "session-expired"
	KeyLangChosen        Key = "lang-chosen"
	KeyChooseLang        Key = "choose-lang"
	KeyWrongChoice       Key = "wrong-choice"
	KeyHelpThanks        Key = "help-thanks"
	KeyThanks            Key = "thanks"
	KeyYes               Key = "yes"
	KeyNo                Key = "no"
	KeyNotSaved          Key = "not-saved"
	KeySaved             Key = "saved"
	KeyThanksAgain       Key = "thx-again"
	KeyThanksNoUsername  Key = "thanks-no-username"
)

// Catalog is the string table of one language.
type Catalog struct {
	Language string         `json:"language"`
	Name     string         `json:"name"`
	Strings  map[Key]string `json:"strings"`
}

// Seed provides the built-in English and Russian catalogs.
func Seed() []Catalog {
	return []Catalog{
		{
			Language: "en",
			Name:     "English",
			Strings: map[Key]string{
				KeyBotDescr: "Hi. I can change 'title' and 'artist' tags in your audiofile!\n" +
					"To do so - send any audio file to me.\n" +
					"Note: if you send with an extension other than mp3, bot will convert your audio file in mp3.",
				KeyAskTitle:          "Enter title.",
				KeyAskArtist:         "Enter artist.",
				KeyExpectedText:      "You should send text!",
				KeyExpectedAudio:     "You should send audio!",
				KeyFinishCurrentEdit: "Finish the current edit first: I am still waiting for text.",
				KeyProcessingFailed:  "Sorry, I could not read this audio file.",
				KeyUnsupportedFormat: "Sorry, this audio format is not supported.",
				KeyTagFailed:         "Sorry, I could not write tags to this file.",
				KeyStorageFailed:     "Sorry, I could not retrieve your file. Please send it again.",
				KeySessionExpired:    "Your edit was cancelled because it was idle for too long. Send the audio again to start over.",
				KeyLangChosen: "English has been selected.\n" +
					"To get help with the bot, enter - /help.\n" +
					"To call language change panel, enter - /start.\n" +
					"Say 'thanks' - /thanks",
				KeyChooseLang:  "Choose language:",
				KeyWrongChoice: "You should click on button!",
				KeyHelpThanks:  "You can say 'thanks' to developer with /thanks",
				KeyThanks: "You can send your 'thanks' to developer!\n" +
					"It will be saved in 'thanklist' with your nickname.\n" +
					"Do you want to do it?",
				KeyYes:              "Yes",
				KeyNo:               "No",
				KeyNotSaved:         "Your 'thanks' was not saved.",
				KeySaved:            "Your 'thanks' was saved.",
				KeyThanksAgain:      "You have said thanks already.",
				KeyThanksNoUsername: "Set a username in your profile to say 'thanks'.",
			},
		},
		{
			Language: "ru",
			Name:     "Русский",
			Strings: map[Key]string{
				KeyBotDescr: "Привет. Я могу менять теги «название» и «исполнитель» в вашем аудиофайле!\n" +
					"Для этого пришлите мне любой аудиофайл.\n" +
					"Примечание: если вы отправляете с расширением, отличным от mp3, бот сконвертирует ваш аудиофайл в mp3.",
				KeyAskTitle:          "Введите название.",
				KeyAskArtist:         "Введите исполнителя.",
				KeyExpectedText:      "Вы должны вводить текст!",
				KeyExpectedAudio:     "Вы должны отправлять аудио!",
				KeyFinishCurrentEdit: "Сначала завершите текущее редактирование: я всё ещё жду текст.",
				KeyProcessingFailed:  "Не удалось прочитать этот аудиофайл.",
				KeyUnsupportedFormat: "Этот аудиоформат не поддерживается.",
				KeyTagFailed:         "Не удалось записать теги в этот файл.",
				KeyStorageFailed:     "Не удалось получить ваш файл. Пришлите его ещё раз.",
				KeySessionExpired:    "Редактирование отменено из-за долгого бездействия. Пришлите аудио заново.",
				KeyLangChosen: "Был выбран русский язык. " +
					"Чтобы получить помощь по работе бота введите - /help.\n" +
					"Чтобы вызвать панель смены языка введите - /start.\n" +
					"Cказать 'спасибо' - /thanks",
				KeyChooseLang:  "Выберите язык:",
				KeyWrongChoice: "Вы должны нажать на кнопку!",
				KeyHelpThanks:  "Вы можете поблагодарить разработчика с помощью /thanks",
				KeyThanks: "Вы можете отправить своё 'спасибо' разработчику!\n" +
					"Оно будет сохранено в 'списке благодарностей' вместе с вашим никнеймом.\n" +
					"Вы хотите сделать это?",
				KeyYes:              "Да",
				KeyNo:               "Нет",
				KeyNotSaved:         "Ваше спасибо не было сохранено.",
				KeySaved:            "Ваше спасибо было сохранено.",
				KeyThanksAgain:      "Вы уже говорили спасибо.",
				KeyThanksNoUsername: "Укажите имя пользователя в профиле, чтобы сказать спасибо.",
			},
		},
	}
}
