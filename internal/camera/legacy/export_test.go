package legacy

var FocusArea = focusArea
