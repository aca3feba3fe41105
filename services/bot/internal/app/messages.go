package app

// User-facing texts. Internal error strings never reach the chat.
const (
	MsgProcessing = "✅ Фото получено! Изучаю линии ладони, это займёт немного времени…"
	MsgApology    = "Произошла ошибка при анализе руки. Пожалуйста, попробуйте ещё раз позже."
	MsgSendPhoto  = "Извините, я умею работать только с фотографиями рук. Пожалуйста, отправьте фото своей ладони."
	MsgOnlyPhotos = "Извините, я могу анализировать только фотографии рук. Пожалуйста, отправьте фото."
	MsgWelcome    = "Привет! Я читаю линии ладони. Пришлите фотографию раскрытой ладони крупным планом при хорошем освещении, и я расскажу, что на ней вижу."
	MsgTooMany    = "Вы отправили слишком много фото за последний час. Пожалуйста, попробуйте позже."

	partMarker = "Часть %d из %d\n\n"
)

// DefaultPrompt is the instruction sent with every palm photo.
const DefaultPrompt = "Ты опытный хиромант. Внимательно рассмотри фотографию ладони и составь подробное толкование: " +
	"линия жизни, линия сердца, линия ума, линия судьбы, холмы и общая форма руки. " +
	"Пиши по-русски, доброжелательно, без медицинских диагнозов и без оговорок о том, что ты модель. " +
	"Раздели ответ на абзацы. Если на снимке нет человеческой ладони, ответь одной фразой на английском: \"not a palm\"."
